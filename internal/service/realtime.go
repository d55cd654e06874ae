package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lucylow/kale-ndar-sub000/internal/domain"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
	"github.com/lucylow/kale-ndar-sub000/internal/port/cache"
	"github.com/lucylow/kale-ndar-sub000/internal/port/messagequeue"
)

// Sender delivers an outbound frame to one connection, best-effort.
type Sender interface {
	Send(connectionID string, v any)
}

// Publisher is the narrow interface producers depend on to report state
// changes. The Broadcaster implements it; domain services, the scheduler
// and the webhook adapter all publish through it.
type Publisher interface {
	Publish(ctx context.Context, t event.Type, payload any, marketID, userID string, priority event.Priority) (string, error)
}

// StreamStopper stops a market's data stream. Implemented by the scheduler;
// wired after construction to break the publish cycle between the two.
type StreamStopper interface {
	StopStream(marketID string)
}

// Notifier creates and delivers a push notification. Implemented by the
// notification service.
type Notifier interface {
	Send(ctx context.Context, userID, title, message string, data json.RawMessage, notifType notification.Type, priority event.Priority) (string, error)
}

// OddsFn computes a market's current odds for derived odds_changed events.
type OddsFn func(ctx context.Context, marketID string) map[string]string

// Instrumentation receives throughput callbacks from the services. All
// methods must be cheap and non-blocking.
type Instrumentation interface {
	EventPublished(ctx context.Context, t event.Type)
	FramesDelivered(ctx context.Context, n int)
	NotificationSent(ctx context.Context)
}

// Broadcaster is the event bus: the single entry point every producer uses
// to publish realtime events. It caches the event, fans it out to matching
// local subscriptions, republishes on the cross-process channel, and runs
// per-type side effects.
type Broadcaster struct {
	registry *Registry
	sender   Sender
	queue    messagequeue.Queue
	events   cache.Cache
	eventTTL time.Duration
	source   string

	streams       StreamStopper
	notifications Notifier
	odds          OddsFn
	metrics       Instrumentation
}

// NewBroadcaster creates the event bus. source tags every published event
// with this instance's identity so the remote subscriber can skip events it
// published itself.
func NewBroadcaster(registry *Registry, sender Sender, queue messagequeue.Queue, events cache.Cache, eventTTL time.Duration, serviceName string) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		sender:   sender,
		queue:    queue,
		events:   events,
		eventTTL: eventTTL,
		source:   serviceName + "/" + uuid.NewString(),
		odds:     placeholderOdds,
	}
}

// SetStreamStopper wires the scheduler in for the market_resolved side
// effect.
func (b *Broadcaster) SetStreamStopper(s StreamStopper) { b.streams = s }

// SetNotifier wires the notification service in for the bet_placed side
// effect.
func (b *Broadcaster) SetNotifier(n Notifier) { b.notifications = n }

// SetOddsFn overrides the odds snapshot used for derived odds_changed
// events.
func (b *Broadcaster) SetOddsFn(fn OddsFn) { b.odds = fn }

// SetInstrumentation wires in metric callbacks. Optional.
func (b *Broadcaster) SetInstrumentation(m Instrumentation) { b.metrics = m }

// Publish constructs an event from the payload, stores it, delivers it to
// matching local subscriptions, republishes it cross-process, and runs side
// effects. Delivery is best-effort; only payload marshalling can fail.
func (b *Broadcaster) Publish(ctx context.Context, t event.Type, payload any, marketID, userID string, priority event.Priority) (string, error) {
	return b.publish(ctx, t, payload, marketID, userID, priority, true)
}

func (b *Broadcaster) publish(ctx context.Context, t event.Type, payload any, marketID, userID string, priority event.Priority, sideEffects bool) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", t, err)
	}
	if err := event.Validate(t, data); err != nil {
		slog.Warn("event payload does not match schema", "event_type", t, "error", err)
	}

	ev := &event.Event{
		ID:        uuid.NewString(),
		EventType: t,
		MarketID:  marketID,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now(),
		Priority:  priority,
		Source:    b.source,
	}

	b.cacheEvent(ctx, ev)
	b.deliverLocal(ev)

	// Local subscribers are served before the cross-process publish, so
	// they never observe the event later than remote instances do.
	if envelope, err := json.Marshal(ev); err == nil {
		if err := b.queue.Publish(ctx, messagequeue.EventSubject(t), envelope); err != nil {
			slog.Error("cross-process publish failed", "event_type", t, "error", err)
		}
	}

	if sideEffects {
		b.runSideEffects(ctx, ev)
	}
	if b.metrics != nil {
		b.metrics.EventPublished(ctx, t)
	}

	slog.Debug("event published",
		"event_id", ev.ID,
		"event_type", t,
		"market_id", marketID,
		"user_id", userID,
		"priority", priority,
	)
	return ev.ID, nil
}

// GetEvent returns a cached event by id, for short-window replay.
func (b *Broadcaster) GetEvent(ctx context.Context, eventID string) (*event.Event, error) {
	data, ok, err := b.events.Get(ctx, eventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("event cache get: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	return &ev, nil
}

// StartRemoteSubscriber consumes events published by other instances and
// fans them out to this instance's connections. Events this instance
// published are skipped to avoid double delivery. Remote events never
// re-trigger side effects; those ran once on the publishing instance.
func (b *Broadcaster) StartRemoteSubscriber(ctx context.Context) (func(), error) {
	return b.queue.Subscribe(ctx, messagequeue.SubjectEvents, func(_ context.Context, subject string, data []byte) error {
		var ev event.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode remote event on %s: %w", subject, err)
		}
		if ev.Source == b.source {
			return nil
		}
		b.deliverLocal(&ev)
		return nil
	})
}

// UpdateLiveOdds publishes a derived odds_changed event for the market.
func (b *Broadcaster) UpdateLiveOdds(ctx context.Context, marketID string) error {
	payload := event.OddsChangedPayload{
		MarketID:  marketID,
		Odds:      b.odds(ctx, marketID),
		Timestamp: time.Now().UnixMilli(),
	}
	_, err := b.publish(ctx, event.TypeOddsChanged, payload, marketID, "", event.PriorityMedium, false)
	return err
}

// UpdateLiveLeaderboard publishes a league_leaderboard_updated event with
// the given standings.
func (b *Broadcaster) UpdateLiveLeaderboard(ctx context.Context, leagueID string, entries []event.LeaderboardEntry) error {
	payload := event.LeaderboardPayload{
		LeagueID:    leagueID,
		Leaderboard: entries,
		Timestamp:   time.Now().UnixMilli(),
	}
	_, err := b.Publish(ctx, event.TypeLeagueLeaderboardUpdated, payload, "", "", event.PriorityMedium)
	return err
}

func (b *Broadcaster) cacheEvent(ctx context.Context, ev *event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.events.Set(ctx, eventKey(ev.ID), data, b.eventTTL); err != nil {
		slog.Error("event cache write failed", "event_id", ev.ID, "error", err)
	}
}

func (b *Broadcaster) deliverLocal(ev *event.Event) {
	frame := NewEventFrame(ev)
	matched := b.registry.Matching(ev)
	for _, sub := range matched {
		b.sender.Send(sub.ConnectionID, frame)
	}
	if b.metrics != nil && len(matched) > 0 {
		b.metrics.FramesDelivered(context.Background(), len(matched))
	}
}

// runSideEffects dispatches the automated actions keyed by event type.
// Each action publishes at most one further event, and that nested publish
// runs with side effects disabled, so recursion is bounded at depth one.
func (b *Broadcaster) runSideEffects(ctx context.Context, ev *event.Event) {
	switch ev.EventType {
	case event.TypePriceUpdate:
		if ev.MarketID != "" {
			if err := b.UpdateLiveOdds(ctx, ev.MarketID); err != nil {
				slog.Error("derived odds update failed", "market_id", ev.MarketID, "error", err)
			}
		}

	case event.TypeMarketResolved:
		if ev.MarketID != "" && b.streams != nil {
			b.streams.StopStream(ev.MarketID)
		}

	case event.TypeBetPlaced:
		if ev.UserID != "" && b.notifications != nil {
			_, err := b.notifications.Send(ctx, ev.UserID,
				"Bet Placed", "Your bet has been placed successfully",
				ev.Data, notification.TypeWinningBet, event.PriorityMedium)
			if err != nil {
				slog.Error("bet notification failed", "user_id", ev.UserID, "error", err)
			}
		}
	}
}

func eventKey(id string) string { return "event:" + id }

// placeholderOdds stands in until the odds engine exposes a snapshot API.
func placeholderOdds(_ context.Context, marketID string) map[string]string {
	_ = marketID
	return map[string]string{"0": "15000", "1": "25000"}
}
