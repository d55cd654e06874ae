// Package subscription defines a connection's declared interest in a subset
// of real-time events.
package subscription

import (
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
)

// Subscription is a union of filters owned by exactly one connection.
// IsActive=false is terminal: a closed subscription is never reactivated,
// a new one is created instead.
type Subscription struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	SubscribedMarkets    map[string]bool     `json:"subscribed_markets"`
	SubscribedEventTypes map[event.Type]bool `json:"subscribed_event_types"`
	SubscribedUsers      map[string]bool     `json:"subscribed_users"`
	ConnectionID         string              `json:"connection_id"`
	IsActive             bool                `json:"is_active"`
	CreatedAt            time.Time           `json:"created_at"`
	LastActivity         time.Time           `json:"last_activity"`
}

// Matches reports whether the subscription should receive ev.
//
// The three filter dimensions are independent and combined with OR: an event
// is delivered when its type, its market, or its user intersects the
// corresponding filter set. A subscription that only lists markets receives
// every event type for those markets.
func (s *Subscription) Matches(ev *event.Event) bool {
	if !s.IsActive {
		return false
	}
	if s.SubscribedEventTypes[ev.EventType] {
		return true
	}
	if ev.MarketID != "" && s.SubscribedMarkets[ev.MarketID] {
		return true
	}
	if ev.UserID != "" && s.SubscribedUsers[ev.UserID] {
		return true
	}
	return false
}

// Filters returns the subscription's filter sets as slices, for wire
// serialization in confirmation frames.
func (s *Subscription) Filters() (markets []string, types []event.Type, users []string) {
	for m := range s.SubscribedMarkets {
		markets = append(markets, m)
	}
	for t := range s.SubscribedEventTypes {
		types = append(types, t)
	}
	for u := range s.SubscribedUsers {
		users = append(users, u)
	}
	return markets, types, users
}
