package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
	"github.com/lucylow/kale-ndar-sub000/internal/port/push"
	"github.com/lucylow/kale-ndar-sub000/internal/port/store"
)

// NotificationService stores per-user notifications and delivers them live
// to the user's open connections. It implements the Notifier interface the
// event bus uses for automated notifications.
type NotificationService struct {
	store    store.KV
	registry *Registry
	sender   Sender
	pusher   push.Provider
	ttl      time.Duration
	metrics  Instrumentation

	// indexMu serializes read-modify-write cycles on per-user index
	// records.
	indexMu sync.Mutex
}

// NewNotificationService creates the notification store. pusher may be nil;
// out-of-band push is then skipped.
func NewNotificationService(kv store.KV, registry *Registry, sender Sender, pusher push.Provider, ttl time.Duration) *NotificationService {
	return &NotificationService{
		store:    kv,
		registry: registry,
		sender:   sender,
		pusher:   pusher,
		ttl:      ttl,
	}
}

// SetInstrumentation wires in metric callbacks. Optional.
func (s *NotificationService) SetInstrumentation(m Instrumentation) { s.metrics = m }

// Send creates a notification, persists it, appends it to the user's index,
// and pushes a NOTIFICATION frame to every connection the user has open.
// Out-of-band push is fire-and-forget.
func (s *NotificationService) Send(ctx context.Context, userID, title, message string, data json.RawMessage, notifType notification.Type, priority event.Priority) (string, error) {
	n := &notification.Notification{
		ID:               uuid.NewString(),
		UserID:           userID,
		Title:            title,
		Message:          message,
		NotificationType: notifType,
		Data:             data,
		Timestamp:        time.Now(),
		IsRead:           false,
		Priority:         priority,
	}

	if err := s.save(ctx, n); err != nil {
		return "", err
	}
	if err := s.appendToIndex(ctx, userIndexKey(userID), n.ID); err != nil {
		return "", fmt.Errorf("update notification index for %s: %w", userID, err)
	}

	frame := NotificationFrame{Type: FrameNotification, Data: n}
	for _, connID := range s.registry.ConnectionsForUser(userID) {
		s.sender.Send(connID, frame)
	}

	if s.pusher != nil {
		go func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.pusher.Send(pushCtx, n); err != nil {
				slog.Warn("push delivery failed",
					"provider", s.pusher.Name(),
					"notification_id", n.ID,
					"error", err,
				)
			}
		}()
	}

	if s.metrics != nil {
		s.metrics.NotificationSent(ctx)
	}
	slog.Debug("notification sent",
		"notification_id", n.ID,
		"user_id", userID,
		"notification_type", notifType,
	)
	return n.ID, nil
}

// List returns the user's notifications, newest first, at most limit.
// limit <= 0 means no limit. Expired entries are skipped.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	ids, err := s.loadIndex(ctx, userIndexKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load notification index for %s: %w", userID, err)
	}

	out := make([]notification.Notification, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.store.Get(ctx, notificationKey(id))
		if err != nil {
			return nil, fmt.Errorf("load notification %s: %w", id, err)
		}
		if !ok {
			continue
		}
		var n notification.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			slog.Warn("skipping undecodable notification", "notification_id", id, "error", err)
			continue
		}
		out = append(out, n)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flags the notification as read. Unknown or expired ids are a
// no-op, so retries and duplicate acks are safe.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) error {
	data, ok, err := s.store.Get(ctx, notificationKey(notificationID))
	if err != nil {
		return fmt.Errorf("load notification %s: %w", notificationID, err)
	}
	if !ok {
		return nil
	}

	var n notification.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode notification %s: %w", notificationID, err)
	}
	if n.IsRead {
		return nil
	}
	n.IsRead = true
	return s.save(ctx, &n)
}

func (s *NotificationService) save(ctx context.Context, n *notification.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.store.Set(ctx, notificationKey(n.ID), data, s.ttl); err != nil {
		return fmt.Errorf("store notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *NotificationService) loadIndex(ctx context.Context, key string) ([]string, error) {
	data, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", key, err)
	}
	return ids, nil
}

func (s *NotificationService) appendToIndex(ctx context.Context, key, id string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	ids, err := s.loadIndex(ctx, key)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, data, s.ttl)
}

func notificationKey(id string) string { return "notification:" + id }
func userIndexKey(userID string) string {
	return "user_notifications:" + userID
}
