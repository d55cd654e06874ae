package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
)

const meterName = "kalendar-realtime"

// Metrics holds the realtime service's metric instruments. It implements
// service.Instrumentation.
type Metrics struct {
	eventsPublished   metric.Int64Counter
	framesDelivered   metric.Int64Counter
	notificationsSent metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.eventsPublished, err = meter.Int64Counter("kalendar.events.published",
		metric.WithDescription("Number of realtime events published"))
	if err != nil {
		return nil, err
	}

	m.framesDelivered, err = meter.Int64Counter("kalendar.frames.delivered",
		metric.WithDescription("Number of event frames delivered to connections"))
	if err != nil {
		return nil, err
	}

	m.notificationsSent, err = meter.Int64Counter("kalendar.notifications.sent",
		metric.WithDescription("Number of notifications created"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// EventPublished counts one published event by type.
func (m *Metrics) EventPublished(ctx context.Context, t event.Type) {
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", string(t))))
}

// FramesDelivered counts frames fanned out to connections.
func (m *Metrics) FramesDelivered(ctx context.Context, n int) {
	m.framesDelivered.Add(ctx, int64(n))
}

// NotificationSent counts one created notification.
func (m *Metrics) NotificationSent(ctx context.Context) {
	m.notificationsSent.Add(ctx, 1)
}

// RegisterConnectionGauge exports the live connection count as an
// observable gauge.
func RegisterConnectionGauge(count func() int) error {
	meter := otel.Meter(meterName)
	_, err := meter.Int64ObservableGauge("kalendar.connections.active",
		metric.WithDescription("Number of live WebSocket connections"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}))
	return err
}
