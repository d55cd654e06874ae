package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/adapter/marketmap"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/ws"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/stream"
	"github.com/lucylow/kale-ndar-sub000/internal/port/messagequeue"
	"github.com/lucylow/kale-ndar-sub000/internal/service"
)

// Handlers bundles the HTTP endpoint implementations with their service
// dependencies.
type Handlers struct {
	hub           *ws.Hub
	bus           *service.Broadcaster
	registry      *service.Registry
	scheduler     *service.Scheduler
	webhook       *service.WebhookService
	chat          *service.ChatService
	notifications *service.NotificationService
	resolver      *marketmap.Resolver
	queue         messagequeue.Queue
}

// NewHandlers creates the endpoint set.
func NewHandlers(
	hub *ws.Hub,
	bus *service.Broadcaster,
	registry *service.Registry,
	scheduler *service.Scheduler,
	webhook *service.WebhookService,
	chat *service.ChatService,
	notifications *service.NotificationService,
	resolver *marketmap.Resolver,
	queue messagequeue.Queue,
) *Handlers {
	return &Handlers{
		hub:           hub,
		bus:           bus,
		registry:      registry,
		scheduler:     scheduler,
		webhook:       webhook,
		chat:          chat,
		notifications: notifications,
		resolver:      resolver,
		queue:         queue,
	}
}

// HandleWS upgrades the request to a WebSocket connection.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}

// Health reports process liveness and broker connectivity.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"nats_connected": h.queue.IsConnected(),
	})
}

// Stats reports the realtime subsystem's live counters.
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	streams := h.scheduler.ActiveStreams()
	writeJSON(w, http.StatusOK, map[string]any{
		"connections":          h.hub.ConnectionCount(),
		"active_subscriptions": h.registry.ActiveCount(),
		"active_streams":       len(streams),
		"streams":              streams,
	})
}

// OracleWebhook ingests one oracle price push. The endpoint always acks;
// malformed updates are logged and dropped so the oracle never retries
// junk.
func (h *Handlers) OracleWebhook(w http.ResponseWriter, r *http.Request) {
	upd, ok := readJSON[service.OracleUpdate](w, r)
	if !ok {
		return
	}
	h.webhook.Process(r.Context(), upd)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type registerMappingRequest struct {
	SubscriptionID string   `json:"subscriptionId"`
	MarketID       string   `json:"marketId"`
	Lower          *float64 `json:"lower"`
	Upper          *float64 `json:"upper"`
}

// RegisterOracleMapping maps an oracle subscription to a market and
// optionally configures its resolution band.
func (h *Handlers) RegisterOracleMapping(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerMappingRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.SubscriptionID, "subscriptionId") || !requireField(w, req.MarketID, "marketId") {
		return
	}
	h.resolver.Register(req.SubscriptionID, req.MarketID)
	if req.Lower != nil && req.Upper != nil {
		h.resolver.SetResolutionBand(req.MarketID, *req.Lower, *req.Upper)
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"subscription_id": req.SubscriptionID,
		"market_id":       req.MarketID,
	})
}

type publishEventRequest struct {
	Type     event.Type      `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	MarketID string          `json:"marketId"`
	UserID   string          `json:"userId"`
	Priority event.Priority  `json:"priority"`
}

// PublishEvent lets backend services inject a realtime event over HTTP.
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[publishEventRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, string(req.Type), "type") {
		return
	}
	if req.Priority == "" {
		req.Priority = event.PriorityMedium
	}
	payload := req.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	id, err := h.bus.Publish(r.Context(), req.Type, payload, req.MarketID, req.UserID, req.Priority)
	if err != nil {
		writeDomainError(w, err, "event not accepted")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": id})
}

// GetEvent returns a recent event by id for short-window replay.
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.bus.GetEvent(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type startStreamRequest struct {
	PriceIntervalMs  int64 `json:"priceIntervalMs"`
	OddsIntervalMs   int64 `json:"oddsIntervalMs"`
	VolumeIntervalMs int64 `json:"volumeIntervalMs"`
}

// StartStream starts (or restarts) a market's data stream. The body is
// optional; an empty body starts the stream on the default cadence.
func (h *Handlers) StartStream(w http.ResponseWriter, r *http.Request) {
	marketID := urlParam(r, "marketId")
	var req startStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cadence := stream.Cadence{
		Price:  time.Duration(req.PriceIntervalMs) * time.Millisecond,
		Odds:   time.Duration(req.OddsIntervalMs) * time.Millisecond,
		Volume: time.Duration(req.VolumeIntervalMs) * time.Millisecond,
	}
	rec := h.scheduler.StartStream(marketID, cadence)
	writeJSON(w, http.StatusOK, rec)
}

// StopStream stops a market's data stream. Idempotent.
func (h *Handlers) StopStream(w http.ResponseWriter, r *http.Request) {
	h.scheduler.StopStream(urlParam(r, "marketId"))
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages returns a market's chat history, oldest first.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	list, err := h.chat.List(r.Context(), urlParam(r, "marketId"), queryLimit(r))
	if err != nil {
		writeDomainError(w, err, "messages not found")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type likeRequest struct {
	Liker string `json:"liker"`
}

// LikeMessage increments a chat message's like counter.
func (h *Handlers) LikeMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[likeRequest](w, r)
	if !ok {
		return
	}
	likes, err := h.chat.LikeMessage(r.Context(), urlParam(r, "id"), req.Liker)
	if err != nil {
		writeDomainError(w, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"likes": likes})
}

// ListNotifications returns a user's notifications, newest first.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.notifications.List(r.Context(), urlParam(r, "userId"), queryLimit(r))
	if err != nil {
		writeDomainError(w, err, "notifications not found")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkNotificationRead flags a notification as read. Idempotent.
func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type leaderboardRequest struct {
	Leaderboard []event.LeaderboardEntry `json:"leaderboard"`
}

// UpdateLeaderboard publishes a league's new standings.
func (h *Handlers) UpdateLeaderboard(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[leaderboardRequest](w, r)
	if !ok {
		return
	}
	err := h.bus.UpdateLiveLeaderboard(r.Context(), urlParam(r, "leagueId"), req.Leaderboard)
	if err != nil {
		writeDomainError(w, err, "leaderboard not accepted")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
