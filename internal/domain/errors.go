// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConnectionLimit indicates the connection manager is at capacity.
var ErrConnectionLimit = errors.New("connection limit reached")
