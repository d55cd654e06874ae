package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/port/store"
)

// Cleanup sweeps expired realtime records out of the store. Backends with
// native expiry treat this as a no-op safety net; backends without it rely
// on the sweep entirely.
type Cleanup struct {
	store store.KV

	eventTTL        time.Duration
	notificationTTL time.Duration
	chatTTL         time.Duration

	now func() time.Time
}

// NewCleanup creates a sweeper with per-record-class retention windows.
func NewCleanup(kv store.KV, eventTTL, notificationTTL, chatTTL time.Duration) *Cleanup {
	return &Cleanup{
		store:           kv,
		eventTTL:        eventTTL,
		notificationTTL: notificationTTL,
		chatTTL:         chatTTL,
		now:             time.Now,
	}
}

// Run performs one sweep over every record class and returns how many
// records it removed. Errors on individual records are logged and skipped;
// a failing record never blocks the rest of the sweep.
func (c *Cleanup) Run(ctx context.Context) int {
	removed := 0
	removed += c.sweep(ctx, "event:", c.eventTTL)
	removed += c.sweep(ctx, "notification:", c.notificationTTL)
	removed += c.sweep(ctx, "chat_message:", c.chatTTL)
	if removed > 0 {
		slog.Info("cleanup sweep removed records", "count", removed)
	}
	return removed
}

// sweep removes records under prefix whose embedded timestamp is older than
// ttl. Records exactly at the boundary are kept.
func (c *Cleanup) sweep(ctx context.Context, prefix string, ttl time.Duration) int {
	keys, err := c.store.Scan(ctx, prefix)
	if err != nil {
		slog.Error("cleanup scan failed", "prefix", prefix, "error", err)
		return 0
	}

	cutoff := c.now().Add(-ttl)
	removed := 0
	for _, key := range keys {
		data, ok, err := c.store.Get(ctx, key)
		if err != nil {
			slog.Warn("cleanup read failed", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}

		ts, ok := recordTimestamp(data)
		if !ok {
			// Undecodable records are removed; they can never be
			// served anyway.
			ts = time.Time{}
		}
		if ts.After(cutoff) || ts.Equal(cutoff) {
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			slog.Warn("cleanup delete failed", "key", key, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// recordTimestamp extracts the creation timestamp shared by all record
// classes.
func recordTimestamp(data []byte) (time.Time, bool) {
	var rec struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &rec); err != nil || rec.Timestamp.IsZero() {
		return time.Time{}, false
	}
	return rec.Timestamp, true
}
