package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucylow/kale-ndar-sub000/internal/adapter/marketmap"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/memstore"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/ws"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/notification"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/stream"
	"github.com/lucylow/kale-ndar-sub000/internal/port/messagequeue"
	"github.com/lucylow/kale-ndar-sub000/internal/service"
)

var _ messagequeue.Queue = (*stubQueue)(nil)

type stubQueue struct{}

func (stubQueue) Publish(context.Context, string, []byte) error { return nil }
func (stubQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (stubQueue) Drain() error      { return nil }
func (stubQueue) Close() error      { return nil }
func (stubQueue) IsConnected() bool { return true }

type fixture struct {
	router        chi.Router
	scheduler     *service.Scheduler
	notifications *service.NotificationService
	chat          *service.ChatService
	resolver      *marketmap.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hub := ws.NewHub(10)
	registry := service.NewRegistry()
	kv := memstore.New()
	queue := stubQueue{}

	bus := service.NewBroadcaster(registry, hub, queue, memstore.New(), time.Hour, "test")
	scheduler := service.NewScheduler(bus, stream.Cadence{
		Price:  time.Hour,
		Odds:   time.Hour,
		Volume: time.Hour,
	})
	t.Cleanup(scheduler.Close)
	bus.SetStreamStopper(scheduler)

	notifications := service.NewNotificationService(kv, registry, hub, nil, time.Hour)
	bus.SetNotifier(notifications)
	chatSvc := service.NewChatService(kv, bus, time.Hour)

	resolver := marketmap.NewResolver()
	webhook := service.NewWebhookService(resolver, bus)

	handlers := NewHandlers(hub, bus, registry, scheduler, webhook, chatSvc, notifications, resolver, queue)
	r := chi.NewRouter()
	MountRoutes(r, handlers)

	return &fixture{
		router:        r,
		scheduler:     scheduler,
		notifications: notifications,
		chat:          chatSvc,
		resolver:      resolver,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["nats_connected"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.scheduler.StartStream("mkt-1", stream.Cadence{})

	rec := f.do(t, http.MethodGet, "/api/realtime/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Connections   int `json:"connections"`
		ActiveStreams int `json:"active_streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Connections != 0 || body.ActiveStreams != 1 {
		t.Errorf("stats = %+v", body)
	}
}

func TestPublishAndGetEvent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/events",
		`{"type":"market_created","payload":{"market_id":"mkt-1"},"marketId":"mkt-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("publish status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	id := resp["event_id"]
	if id == "" {
		t.Fatal("no event_id in response")
	}

	rec = f.do(t, http.MethodGet, "/api/events/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var ev event.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != id || ev.EventType != event.TypeMarketCreated {
		t.Errorf("event = %+v", ev)
	}

	if rec := f.do(t, http.MethodGet, "/api/events/unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get unknown status = %d, want 404", rec.Code)
	}
}

func TestPublishEventRequiresType(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/events", `{"marketId":"mkt-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOracleWebhookAlwaysAcks(t *testing.T) {
	f := newFixture(t)

	// Unmapped subscription: dropped but acked.
	rec := f.do(t, http.MethodPost, "/api/oracle/webhook",
		`{"subscriptionId":"sub-9","price":"1.0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Mapped subscription over its resolution band stops the stream.
	f.resolver.Register("sub-1", "mkt-1")
	f.resolver.SetResolutionBand("mkt-1", 0.05, 0.95)
	f.scheduler.StartStream("mkt-1", stream.Cadence{})

	rec = f.do(t, http.MethodPost, "/api/oracle/webhook",
		`{"subscriptionId":"sub-1","price":"0.99","previousPrice":"0.50"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := f.scheduler.ActiveStreams(); len(got) != 0 {
		t.Errorf("stream still active after resolution: %v", got)
	}
}

func TestStreamLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/streams/mkt-1/start", `{"priceIntervalMs":60000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", rec.Code)
	}
	var s stream.Stream
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.MarketID != "mkt-1" || s.Cadence.Price != time.Minute {
		t.Errorf("stream = %+v", s)
	}

	if rec := f.do(t, http.MethodPost, "/api/streams/mkt-1/stop", ""); rec.Code != http.StatusNoContent {
		t.Errorf("stop status = %d, want 204", rec.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	f := newFixture(t)

	id, err := f.notifications.Send(context.Background(), "alice", "T", "B", nil,
		notification.TypeLeagueUpdate, event.PriorityLow)
	if err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/users/alice/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list []notification.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("list = %v", list)
	}

	if rec := f.do(t, http.MethodPost, "/api/notifications/"+id+"/read", ""); rec.Code != http.StatusNoContent {
		t.Errorf("mark read status = %d, want 204", rec.Code)
	}
}

func TestChatEndpoints(t *testing.T) {
	f := newFixture(t)

	msg, err := f.chat.SendMessage(context.Background(), "mkt-1", "alice", "hi", "", "")
	if err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/markets/mkt-1/messages?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/like", `{"liker":"bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("like status = %d, want 200", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["likes"] != 1 {
		t.Errorf("likes = %d, want 1", resp["likes"])
	}

	if rec := f.do(t, http.MethodPost, "/api/messages/unknown/like", `{"liker":"bob"}`); rec.Code != http.StatusNotFound {
		t.Errorf("like unknown status = %d, want 404", rec.Code)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/leagues/league-1/leaderboard",
		`{"leaderboard":[{"address":"GABC","score":"9000"}]}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
