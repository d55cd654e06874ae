// Package store defines the port interface for the shared key-value store.
//
// All realtime records (events, notifications, chat messages, indexes) live
// behind this interface so the same service logic runs against an in-memory
// map in tests and a shared store (NATS KV, Postgres) across instances in
// production.
package store

import (
	"context"
	"time"
)

// KV is the port interface for the realtime record store.
type KV interface {
	// Get retrieves the value for key. ok is false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores value under key. A zero ttl means no expiry; otherwise the
	// entry is eligible for removal after ttl. A Get immediately after Set
	// must observe the value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Scan returns all live keys beginning with prefix. Order is undefined.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
