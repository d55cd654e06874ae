// Package logpush provides a push provider that writes notifications to the
// structured log. It is the default provider for environments without a
// real push service.
package logpush

import (
	"context"
	"log/slog"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
	"github.com/lucylow/kale-ndar-sub000/internal/port/push"
)

func init() {
	push.Register("log", func(_ map[string]string) (push.Provider, error) {
		return &Provider{}, nil
	})
}

// Provider logs each notification instead of delivering it externally.
type Provider struct{}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "log" }

// Send logs the notification.
func (p *Provider) Send(_ context.Context, n *notification.Notification) error {
	slog.Info("push notification",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"title", n.Title,
		"notification_type", n.NotificationType,
		"priority", n.Priority,
	)
	return nil
}
