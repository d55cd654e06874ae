package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/adapter/memstore"
	"github.com/lucylow/kale-ndar-sub000/internal/domain"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
)

func newTestBus(t *testing.T) (*Broadcaster, *Registry, *mockSender, *mockQueue) {
	t.Helper()
	registry := NewRegistry()
	sender := newMockSender()
	queue := newMockQueue()
	bus := NewBroadcaster(registry, sender, queue, memstore.New(), time.Hour, "test")
	return bus, registry, sender, queue
}

func TestPublishDeliversToMatchingSubscriptions(t *testing.T) {
	bus, registry, sender, _ := newTestBus(t)

	registry.Subscribe("alice", "conn-1", []string{"mkt-1"}, nil, nil)
	registry.Subscribe("bob", "conn-2", []string{"mkt-2"}, nil, nil)

	payload := event.BetPlacedPayload{BetID: "bet-1", MarketID: "mkt-1", Amount: "100"}
	id, err := bus.Publish(context.Background(), event.TypeBetPlaced, payload, "mkt-1", "", event.PriorityMedium)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Fatal("Publish returned empty event id")
	}

	frames := sender.sent("conn-1")
	if len(frames) != 1 {
		t.Fatalf("conn-1 got %d frames, want 1", len(frames))
	}
	frame, ok := frames[0].(EventFrame)
	if !ok {
		t.Fatalf("conn-1 got frame of type %T, want EventFrame", frames[0])
	}
	if frame.Type != event.TypeBetPlaced || frame.ID != id {
		t.Errorf("frame = {%s %s}, want {bet_placed %s}", frame.Type, frame.ID, id)
	}

	if n := sender.count("conn-2"); n != 0 {
		t.Errorf("conn-2 got %d frames, want 0", n)
	}
}

func TestPublishAfterUnsubscribeStopsDelivery(t *testing.T) {
	bus, registry, sender, _ := newTestBus(t)

	sub := registry.Subscribe("alice", "conn-1", []string{"mkt-1"}, nil, nil)

	publish := func() {
		_, err := bus.Publish(context.Background(), event.TypeMarketCreated,
			event.MarketCreatedPayload{MarketID: "mkt-1"}, "mkt-1", "", event.PriorityLow)
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	publish()
	if n := sender.count("conn-1"); n != 1 {
		t.Fatalf("got %d frames before unsubscribe, want 1", n)
	}

	registry.Unsubscribe(sub.ID)
	publish()
	if n := sender.count("conn-1"); n != 1 {
		t.Errorf("got %d frames after unsubscribe, want 1", n)
	}
}

func TestPublishRepublishesCrossProcess(t *testing.T) {
	bus, _, _, queue := newTestBus(t)

	_, err := bus.Publish(context.Background(), event.TypeMarketCreated,
		event.MarketCreatedPayload{MarketID: "mkt-1"}, "mkt-1", "", event.PriorityLow)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg, ok := queue.lastPublished()
	if !ok {
		t.Fatal("no cross-process publish recorded")
	}
	if msg.subject != "events.market_created" {
		t.Errorf("subject = %q, want events.market_created", msg.subject)
	}
	var ev event.Event
	if err := json.Unmarshal(msg.data, &ev); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if ev.EventType != event.TypeMarketCreated || ev.Source == "" {
		t.Errorf("envelope = {%s source=%q}, want market_created with non-empty source", ev.EventType, ev.Source)
	}
}

func TestPublishSucceedsWhenQueueFails(t *testing.T) {
	bus, registry, sender, queue := newTestBus(t)
	queue.publishErr = errors.New("broker down")

	registry.Subscribe("alice", "conn-1", []string{"mkt-1"}, nil, nil)

	_, err := bus.Publish(context.Background(), event.TypeMarketCreated,
		event.MarketCreatedPayload{MarketID: "mkt-1"}, "mkt-1", "", event.PriorityLow)
	if err != nil {
		t.Fatalf("Publish with failing queue: %v", err)
	}
	if n := sender.count("conn-1"); n != 1 {
		t.Errorf("local delivery got %d frames, want 1", n)
	}
}

func TestGetEvent(t *testing.T) {
	bus, _, _, _ := newTestBus(t)

	id, err := bus.Publish(context.Background(), event.TypeMarketCreated,
		event.MarketCreatedPayload{MarketID: "mkt-1"}, "mkt-1", "", event.PriorityLow)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev, err := bus.GetEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.ID != id || ev.EventType != event.TypeMarketCreated {
		t.Errorf("event = {%s %s}, want {%s market_created}", ev.ID, ev.EventType, id)
	}

	if _, err := bus.GetEvent(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetEvent(unknown) error = %v, want ErrNotFound", err)
	}
}

type stopRecorder struct {
	stopped []string
}

func (s *stopRecorder) StopStream(marketID string) {
	s.stopped = append(s.stopped, marketID)
}

type notifyRecorder struct {
	calls []notifyCall
}

type notifyCall struct {
	userID    string
	title     string
	message   string
	notifType notification.Type
	priority  event.Priority
}

func (n *notifyRecorder) Send(_ context.Context, userID, title, message string, _ json.RawMessage, notifType notification.Type, priority event.Priority) (string, error) {
	n.calls = append(n.calls, notifyCall{userID, title, message, notifType, priority})
	return "notif-1", nil
}

func TestMarketResolvedStopsStream(t *testing.T) {
	bus, _, _, _ := newTestBus(t)
	stopper := &stopRecorder{}
	bus.SetStreamStopper(stopper)

	_, err := bus.Publish(context.Background(), event.TypeMarketResolved,
		event.MarketResolvedPayload{Outcome: 1, TriggeredBy: "oracle"}, "mkt-1", "", event.PriorityCritical)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(stopper.stopped) != 1 || stopper.stopped[0] != "mkt-1" {
		t.Errorf("stopped = %v, want [mkt-1]", stopper.stopped)
	}
}

func TestBetPlacedSendsNotification(t *testing.T) {
	bus, _, _, _ := newTestBus(t)
	notifier := &notifyRecorder{}
	bus.SetNotifier(notifier)

	_, err := bus.Publish(context.Background(), event.TypeBetPlaced,
		event.BetPlacedPayload{BetID: "bet-1", MarketID: "mkt-1", UserID: "alice"},
		"mkt-1", "alice", event.PriorityMedium)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.calls))
	}
	call := notifier.calls[0]
	if call.userID != "alice" || call.title != "Bet Placed" {
		t.Errorf("notification = %+v, want user alice with title 'Bet Placed'", call)
	}
	if call.message != "Your bet has been placed successfully" {
		t.Errorf("message = %q", call.message)
	}
	if call.notifType != notification.TypeWinningBet || call.priority != event.PriorityMedium {
		t.Errorf("type/priority = %s/%s, want winning_bet/medium", call.notifType, call.priority)
	}
}

func TestPriceUpdateDerivesSingleOddsChanged(t *testing.T) {
	bus, registry, sender, _ := newTestBus(t)

	registry.Subscribe("alice", "conn-1", []string{"mkt-1"}, nil, nil)

	_, err := bus.Publish(context.Background(), event.TypePriceUpdate,
		event.PriceUpdatePayload{Price: "120", PreviousPrice: "100", Change: 20},
		"mkt-1", "", event.PriorityHigh)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	frames := sender.sent("conn-1")
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (price_update + odds_changed)", len(frames))
	}
	second := frames[1].(EventFrame)
	if second.Type != event.TypeOddsChanged {
		t.Fatalf("second frame type = %s, want odds_changed", second.Type)
	}
	var odds event.OddsChangedPayload
	if err := json.Unmarshal(second.Data, &odds); err != nil {
		t.Fatalf("decode odds payload: %v", err)
	}
	if odds.MarketID != "mkt-1" || odds.Odds["0"] != "15000" || odds.Odds["1"] != "25000" {
		t.Errorf("odds payload = %+v", odds)
	}
}

func TestRemoteSubscriberDeliversAndSkipsOwnEvents(t *testing.T) {
	bus, registry, sender, queue := newTestBus(t)

	registry.Subscribe("alice", "conn-1", []string{"mkt-1"}, nil, nil)

	if _, err := bus.StartRemoteSubscriber(context.Background()); err != nil {
		t.Fatalf("StartRemoteSubscriber: %v", err)
	}

	remote := event.Event{
		ID:        "ev-remote",
		EventType: event.TypeMarketCreated,
		MarketID:  "mkt-1",
		Data:      json.RawMessage(`{}`),
		Timestamp: time.Now(),
		Priority:  event.PriorityLow,
		Source:    "other-instance/xyz",
	}
	data, _ := json.Marshal(remote)
	if err := queue.deliver("events.market_created", data); err != nil {
		t.Fatalf("deliver remote: %v", err)
	}
	if n := sender.count("conn-1"); n != 1 {
		t.Fatalf("remote event delivered %d frames, want 1", n)
	}

	// An event that echoes back with this instance's own source tag must
	// not be delivered a second time.
	_, err := bus.Publish(context.Background(), event.TypeMarketCreated,
		event.MarketCreatedPayload{MarketID: "mkt-1"}, "mkt-1", "", event.PriorityLow)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg, _ := queue.lastPublished()
	if err := queue.deliver(msg.subject, msg.data); err != nil {
		t.Fatalf("deliver own echo: %v", err)
	}
	if n := sender.count("conn-1"); n != 2 {
		t.Errorf("got %d frames, want 2 (remote + local publish, echo skipped)", n)
	}
}

func TestRemoteEventsDoNotRunSideEffects(t *testing.T) {
	bus, _, _, queue := newTestBus(t)
	stopper := &stopRecorder{}
	bus.SetStreamStopper(stopper)

	if _, err := bus.StartRemoteSubscriber(context.Background()); err != nil {
		t.Fatalf("StartRemoteSubscriber: %v", err)
	}

	remote := event.Event{
		ID:        "ev-remote",
		EventType: event.TypeMarketResolved,
		MarketID:  "mkt-1",
		Data:      json.RawMessage(`{}`),
		Timestamp: time.Now(),
		Priority:  event.PriorityCritical,
		Source:    "other-instance/xyz",
	}
	data, _ := json.Marshal(remote)
	if err := queue.deliver("events.market_resolved", data); err != nil {
		t.Fatalf("deliver remote: %v", err)
	}

	if len(stopper.stopped) != 0 {
		t.Errorf("remote event triggered StopStream %v, want none", stopper.stopped)
	}
}

func TestUpdateLiveLeaderboard(t *testing.T) {
	bus, registry, sender, _ := newTestBus(t)

	registry.Subscribe("alice", "conn-1", nil, []event.Type{event.TypeLeagueLeaderboardUpdated}, nil)

	entries := []event.LeaderboardEntry{{Address: "GABC", Score: "9000"}}
	if err := bus.UpdateLiveLeaderboard(context.Background(), "league-1", entries); err != nil {
		t.Fatalf("UpdateLiveLeaderboard: %v", err)
	}

	frames := sender.sent("conn-1")
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	var payload event.LeaderboardPayload
	if err := json.Unmarshal(frames[0].(EventFrame).Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.LeagueID != "league-1" || len(payload.Leaderboard) != 1 {
		t.Errorf("payload = %+v", payload)
	}
}
