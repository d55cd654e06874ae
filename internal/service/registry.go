// Package service contains the realtime application services.
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/subscription"
)

// Registry tracks every subscription and answers which ones should receive
// a given event. All methods are safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*subscription.Subscription
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*subscription.Subscription)}
}

// Subscribe creates an active subscription owned by the given connection
// and returns a snapshot of it.
func (r *Registry) Subscribe(userID, connectionID string, markets []string, eventTypes []event.Type, targetUsers []string) subscription.Subscription {
	now := time.Now()
	sub := &subscription.Subscription{
		ID:                   uuid.NewString(),
		UserID:               userID,
		SubscribedMarkets:    toSet(markets),
		SubscribedEventTypes: toSet(eventTypes),
		SubscribedUsers:      toSet(targetUsers),
		ConnectionID:         connectionID,
		IsActive:             true,
		CreatedAt:            now,
		LastActivity:         now,
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	return *sub
}

// Unsubscribe deactivates the subscription. Deactivation is terminal; a
// re-subscribe creates a new subscription. Unknown ids are a no-op.
func (r *Registry) Unsubscribe(subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[subscriptionID]; ok {
		sub.IsActive = false
	}
}

// DeactivateConnection deactivates every subscription owned by the given
// connection and returns how many it touched. Idempotent.
func (r *Registry) DeactivateConnection(connectionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, sub := range r.subs {
		if sub.ConnectionID == connectionID && sub.IsActive {
			sub.IsActive = false
			n++
		}
	}
	return n
}

// Touch updates LastActivity on every active subscription owned by the
// connection.
func (r *Registry) Touch(connectionID string) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		if sub.ConnectionID == connectionID && sub.IsActive {
			sub.LastActivity = now
		}
	}
}

// Matching returns a snapshot of every active subscription that should
// receive ev. The scan is linear in the number of subscriptions.
func (r *Registry) Matching(ev *event.Event) []subscription.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []subscription.Subscription
	for _, sub := range r.subs {
		if sub.Matches(ev) {
			matched = append(matched, *sub)
		}
	}
	return matched
}

// ConnectionsForUser returns the distinct connection ids that hold an
// active subscription for the given user.
func (r *Registry) ConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var conns []string
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.IsActive && !seen[sub.ConnectionID] {
			seen[sub.ConnectionID] = true
			conns = append(conns, sub.ConnectionID)
		}
	}
	return conns
}

// ActiveCount returns the number of active subscriptions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sub := range r.subs {
		if sub.IsActive {
			n++
		}
	}
	return n
}

func toSet[T comparable](items []T) map[T]bool {
	set := make(map[T]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
