// Package natskv implements the store port using a NATS JetStream KeyValue
// bucket, letting multiple service instances share realtime records without
// a database. Per-entry TTLs are enforced by the cleanup sweep; the bucket's
// own TTL is only a backstop.
package natskv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Store wraps a NATS JetStream KeyValue bucket as a store.KV.
type Store struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed store.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Get retrieves a value from the bucket.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value. The write is immediately visible to Get. The ttl is
// recorded by callers inside the value; expiry happens via the sweep.
func (s *Store) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := s.kv.Put(ctx, encodeKey(key), value)
	return err
}

// Scan returns all keys beginning with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lister.Stop() }()

	encPrefix := encodeKey(prefix)
	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, encPrefix) {
			keys = append(keys, decodeKey(k))
		}
	}
	return keys, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// NATS KV keys are restricted to [-/_=.a-zA-Z0-9]. Store keys use ':' as a
// namespace separator and may carry arbitrary user/market ids, so bytes
// outside the safe set are escaped as "=XX" hex. The mapping is
// byte-for-byte, which keeps prefix scans aligned with encoded prefixes.

const hexDigits = "0123456789ABCDEF"

func safeKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '/':
		return true
	}
	return false
}

func encodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == ':':
			b.WriteByte('.')
		case safeKeyByte(c):
			b.WriteByte(c)
		default:
			b.WriteByte('=')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}

func decodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '.':
			b.WriteByte(':')
		case c == '=' && i+2 < len(key):
			b.WriteByte(unhex(key[i+1])<<4 | unhex(key[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
