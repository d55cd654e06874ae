// Package push defines the external push-notification provider port.
// Delivery through a provider is fire-and-forget: failures are logged by the
// caller, never surfaced to the user sending the notification.
package push

import (
	"context"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
)

// Provider is the port interface for an external push service
// (e.g. Firebase, OneSignal, a Discord relay).
type Provider interface {
	// Name returns the unique identifier for this provider.
	Name() string

	// Send delivers a notification to the external service.
	Send(ctx context.Context, n *notification.Notification) error
}
