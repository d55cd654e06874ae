package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/port/oracle"
)

// OracleUpdate is the inbound shape of an oracle price webhook.
type OracleUpdate struct {
	SubscriptionID string `json:"subscriptionId"`
	Price          string `json:"price"`
	PreviousPrice  string `json:"previousPrice"`
	Timestamp      int64  `json:"timestamp"`
}

// WebhookService converts oracle price pushes into bus events. Malformed or
// unmappable updates are logged and dropped; the webhook endpoint always
// acks so the oracle does not retry junk.
type WebhookService struct {
	resolver oracle.MarketResolver
	bus      Publisher
}

// NewWebhookService creates the oracle webhook processor.
func NewWebhookService(resolver oracle.MarketResolver, bus Publisher) *WebhookService {
	return &WebhookService{resolver: resolver, bus: bus}
}

// Process handles one oracle update. It publishes a high-priority
// price_update for the mapped market and, when the price resolves the
// market, a critical market_resolved after it.
func (s *WebhookService) Process(ctx context.Context, upd OracleUpdate) {
	if upd.SubscriptionID == "" || upd.Price == "" {
		slog.Warn("oracle update missing required fields, dropping",
			"subscription_id", upd.SubscriptionID,
		)
		return
	}

	marketID, err := s.resolver.ResolveMarketForSubscription(ctx, upd.SubscriptionID)
	if err != nil {
		slog.Warn("no market for oracle subscription, dropping",
			"subscription_id", upd.SubscriptionID,
			"error", err,
		)
		return
	}

	price, ok := parsePrice(upd.Price)
	if !ok {
		slog.Warn("unparseable oracle price, dropping",
			"subscription_id", upd.SubscriptionID,
			"price", upd.Price,
		)
		return
	}

	payload := event.PriceUpdatePayload{
		Price:          upd.Price,
		PreviousPrice:  upd.PreviousPrice,
		Change:         percentChange(upd.PreviousPrice, price),
		SubscriptionID: upd.SubscriptionID,
	}
	_, err = s.bus.Publish(ctx, event.TypePriceUpdate, payload, marketID, "", event.PriorityHigh)
	if err != nil {
		slog.Error("price update publish failed", "market_id", marketID, "error", err)
		return
	}

	resolve, err := s.resolver.ShouldTriggerResolution(ctx, marketID, price)
	if err != nil {
		slog.Error("resolution check failed", "market_id", marketID, "error", err)
		return
	}
	if !resolve {
		return
	}

	resolved := event.MarketResolvedPayload{
		Price:       upd.Price,
		TriggeredBy: "oracle",
	}
	_, err = s.bus.Publish(ctx, event.TypeMarketResolved, resolved, marketID, "", event.PriorityCritical)
	if err != nil {
		slog.Error("market resolution publish failed", "market_id", marketID, "error", err)
		return
	}
	slog.Info("market resolved by oracle price",
		"market_id", marketID,
		"subscription_id", upd.SubscriptionID,
		"price", upd.Price,
	)
}

func parsePrice(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// percentChange returns the relative move from prev to cur in percent, or 0
// when prev is absent or zero.
func percentChange(prevStr string, cur float64) float64 {
	prev, ok := parsePrice(prevStr)
	if !ok || prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}
