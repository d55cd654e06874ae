package service

import (
	"encoding/json"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/subscription"
)

// Control frame types. Event frames use the event type itself as the tag.
const (
	FrameError                 = "ERROR"
	FrameNotification          = "NOTIFICATION"
	FrameNotifications         = "NOTIFICATIONS"
	FrameConnectionEstablished = "CONNECTION_ESTABLISHED"
	FrameSubscriptionConfirmed = "SUBSCRIPTION_CONFIRMED"
	FramePong                  = "PONG"
)

// EventFrame is the outbound wire form of a realtime event.
type EventFrame struct {
	Type      event.Type      `json:"type"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Priority  event.Priority  `json:"priority"`
}

// NewEventFrame converts an event envelope to its wire form.
func NewEventFrame(ev *event.Event) EventFrame {
	return EventFrame{
		Type:      ev.EventType,
		ID:        ev.ID,
		Data:      ev.Data,
		Timestamp: ev.Timestamp.UnixMilli(),
		Priority:  ev.Priority,
	}
}

// ErrorFrame reports a malformed or unknown inbound frame to the offending
// connection. The connection stays open.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NotificationFrame carries a single push notification.
type NotificationFrame struct {
	Type string                     `json:"type"`
	Data *notification.Notification `json:"data"`
}

// NotificationsFrame answers a GET_NOTIFICATIONS query.
type NotificationsFrame struct {
	Type string                      `json:"type"`
	Data []notification.Notification `json:"data"`
}

// ConnectionEstablishedFrame is the welcome frame sent on connect.
type ConnectionEstablishedFrame struct {
	Type string `json:"type"`
	Data struct {
		ConnectionID string `json:"connection_id"`
	} `json:"data"`
}

// SubscriptionConfirmedFrame acknowledges a successful subscribe.
type SubscriptionConfirmedFrame struct {
	Type string                      `json:"type"`
	Data SubscriptionConfirmedDetail `json:"data"`
}

// SubscriptionConfirmedDetail is the body of a subscription confirmation.
type SubscriptionConfirmedDetail struct {
	SubscriptionID string       `json:"subscription_id"`
	Markets        []string     `json:"markets,omitempty"`
	EventTypes     []event.Type `json:"event_types,omitempty"`
	TargetUsers    []string     `json:"target_users,omitempty"`
}

// PongFrame answers an inbound PING.
type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func newSubscriptionConfirmed(sub *subscription.Subscription) SubscriptionConfirmedFrame {
	markets, types, users := sub.Filters()
	return SubscriptionConfirmedFrame{
		Type: FrameSubscriptionConfirmed,
		Data: SubscriptionConfirmedDetail{
			SubscriptionID: sub.ID,
			Markets:        markets,
			EventTypes:     types,
			TargetUsers:    users,
		},
	}
}
