// Package cache defines the port interface for read-path caching.
//
// Unlike store.KV, a cache is allowed to drop entries at any time; it only
// accelerates reads and is never the canonical copy.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
