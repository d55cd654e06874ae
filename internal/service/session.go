package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/chat"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
)

// Inbound frame types.
const (
	frameSubscribeMarket      = "SUBSCRIBE_MARKET"
	frameSubscribeUserUpdates = "SUBSCRIBE_USER_UPDATES"
	frameUnsubscribe          = "UNSUBSCRIBE"
	frameSendMessage          = "SEND_MESSAGE"
	frameGetNotifications     = "GET_NOTIFICATIONS"
	framePing                 = "PING"
)

const (
	errInvalidFormat     = "Invalid message format"
	errUnknownMessage    = "Unknown message type"
	defaultHistoryFrames = 50
)

// inboundFrame is the superset of every client frame shape. The type tag
// decides which fields matter.
type inboundFrame struct {
	Type           string       `json:"type"`
	MarketID       string       `json:"marketId"`
	User           string       `json:"user"`
	EventTypes     []event.Type `json:"eventTypes"`
	TargetUser     string       `json:"targetUser"`
	SubscriptionID string       `json:"subscriptionId"`
	Sender         string       `json:"sender"`
	Message        string       `json:"message"`
	MessageType    string       `json:"messageType"`
	ReplyTo        string       `json:"replyTo"`
	Limit          int          `json:"limit"`
}

// Session is the connection-facing protocol layer. It owns the inbound
// frame grammar: parsing, dispatch to the domain services, and the error
// frames for anything malformed. One Session serves all connections; per
// connection state lives in the registry keyed by connection id.
type Session struct {
	registry      *Registry
	sender        Sender
	chat          *ChatService
	notifications *NotificationService
}

// NewSession wires the protocol layer to its services.
func NewSession(registry *Registry, sender Sender, chatSvc *ChatService, notifSvc *NotificationService) *Session {
	return &Session{
		registry:      registry,
		sender:        sender,
		chat:          chatSvc,
		notifications: notifSvc,
	}
}

// HandleConnect sends the welcome frame carrying the server-assigned
// connection id.
func (s *Session) HandleConnect(connectionID string) {
	frame := ConnectionEstablishedFrame{Type: FrameConnectionEstablished}
	frame.Data.ConnectionID = connectionID
	s.sender.Send(connectionID, frame)
}

// HandleDisconnect deactivates every subscription the connection owned.
func (s *Session) HandleDisconnect(connectionID string) {
	n := s.registry.DeactivateConnection(connectionID)
	if n > 0 {
		slog.Debug("deactivated subscriptions on disconnect",
			"connection_id", connectionID,
			"count", n,
		)
	}
}

// HandleMessage parses and dispatches one inbound frame. Protocol errors
// are answered with an ERROR frame; the connection stays open.
func (s *Session) HandleMessage(ctx context.Context, connectionID string, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(connectionID, errInvalidFormat)
		return
	}

	s.registry.Touch(connectionID)

	switch frame.Type {
	case frameSubscribeMarket:
		s.subscribeMarket(connectionID, &frame)
	case frameSubscribeUserUpdates:
		s.subscribeUserUpdates(connectionID, &frame)
	case frameUnsubscribe:
		s.registry.Unsubscribe(frame.SubscriptionID)
	case frameSendMessage:
		s.sendChatMessage(ctx, connectionID, &frame)
	case frameGetNotifications:
		s.getNotifications(ctx, connectionID, &frame)
	case framePing:
		s.sender.Send(connectionID, PongFrame{Type: FramePong, Timestamp: time.Now().UnixMilli()})
	default:
		s.sendError(connectionID, errUnknownMessage)
	}
}

// subscribeMarket registers interest in one market's events. With no
// explicit event types the subscription matches every type touching the
// market.
func (s *Session) subscribeMarket(connectionID string, frame *inboundFrame) {
	if frame.MarketID == "" {
		s.sendError(connectionID, errInvalidFormat)
		return
	}
	sub := s.registry.Subscribe(frame.User, connectionID,
		[]string{frame.MarketID}, frame.EventTypes, nil)
	s.sender.Send(connectionID, newSubscriptionConfirmed(&sub))
}

// subscribeUserUpdates registers interest in events about the target user,
// defaulting to the subscriber's own activity.
func (s *Session) subscribeUserUpdates(connectionID string, frame *inboundFrame) {
	if frame.User == "" {
		s.sendError(connectionID, errInvalidFormat)
		return
	}
	target := frame.TargetUser
	if target == "" {
		target = frame.User
	}
	sub := s.registry.Subscribe(frame.User, connectionID, nil, frame.EventTypes, []string{target})
	s.sender.Send(connectionID, newSubscriptionConfirmed(&sub))
}

func (s *Session) sendChatMessage(ctx context.Context, connectionID string, frame *inboundFrame) {
	if frame.MarketID == "" || frame.Sender == "" || frame.Message == "" {
		s.sendError(connectionID, errInvalidFormat)
		return
	}
	_, err := s.chat.SendMessage(ctx, frame.MarketID, frame.Sender, frame.Message,
		chat.MessageType(frame.MessageType), frame.ReplyTo)
	if err != nil {
		slog.Error("chat message failed", "connection_id", connectionID, "error", err)
		s.sendError(connectionID, "Failed to send message")
	}
}

func (s *Session) getNotifications(ctx context.Context, connectionID string, frame *inboundFrame) {
	if frame.User == "" {
		s.sendError(connectionID, errInvalidFormat)
		return
	}
	limit := frame.Limit
	if limit <= 0 {
		limit = defaultHistoryFrames
	}
	list, err := s.notifications.List(ctx, frame.User, limit)
	if err != nil {
		slog.Error("notification query failed", "user_id", frame.User, "error", err)
		s.sendError(connectionID, "Failed to load notifications")
		return
	}
	s.sender.Send(connectionID, NotificationsFrame{Type: FrameNotifications, Data: list})
}

func (s *Session) sendError(connectionID, msg string) {
	s.sender.Send(connectionID, ErrorFrame{Type: FrameError, Message: msg})
}
