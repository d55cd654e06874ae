package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/stream"
	"github.com/lucylow/kale-ndar-sub000/internal/schedule"
)

// PriceFn supplies a market's current price snapshot for synthetic
// price_update ticks. When unset, price ticks fall back to republishing the
// derived odds snapshot.
type PriceFn func(ctx context.Context, marketID string) event.PriceUpdatePayload

// OddsPublisher is the slice of the Broadcaster the scheduler depends on.
type OddsPublisher interface {
	Publisher
	UpdateLiveOdds(ctx context.Context, marketID string) error
}

// Scheduler owns the per-market data streams: three independent repeating
// timers per market that feed synthetic events into the bus.
type Scheduler struct {
	bus      OddsPublisher
	defaults stream.Cadence
	price    PriceFn

	mu      sync.Mutex
	streams map[string]*marketStream
}

type marketStream struct {
	rec    stream.Stream
	price  *schedule.Task
	odds   *schedule.Task
	volume *schedule.Task
}

// NewScheduler creates a scheduler that publishes through bus. defaults is
// the cadence applied when StartStream is given a zero value.
func NewScheduler(bus OddsPublisher, defaults stream.Cadence) *Scheduler {
	return &Scheduler{
		bus:      bus,
		defaults: defaults,
		streams:  make(map[string]*marketStream),
	}
}

// SetPriceFn wires in a price source for synthetic price_update ticks.
func (s *Scheduler) SetPriceFn(fn PriceFn) { s.price = fn }

// StartStream starts the three timers for a market. Starting a stream for a
// market that already has one replaces it: the old timers are cancelled
// before the new ones start, so a market never ticks twice.
func (s *Scheduler) StartStream(marketID string, cadence stream.Cadence) stream.Stream {
	if cadence.Price <= 0 {
		cadence.Price = s.defaults.Price
	}
	if cadence.Odds <= 0 {
		cadence.Odds = s.defaults.Odds
	}
	if cadence.Volume <= 0 {
		cadence.Volume = s.defaults.Volume
	}

	s.mu.Lock()
	// Claim any displaced stream under the lock, then stop it outside:
	// Stop waits for in-flight ticks, which may themselves need the
	// scheduler. A concurrent StartStream can insert a new entry while the
	// lock is released, so loop until nothing is left to displace.
	for {
		old, ok := s.streams[marketID]
		if !ok {
			break
		}
		delete(s.streams, marketID)
		s.mu.Unlock()
		stopStream(old)
		s.mu.Lock()
	}

	ms := &marketStream{
		rec: stream.Stream{
			MarketID:  marketID,
			Cadence:   cadence,
			IsActive:  true,
			StartedAt: time.Now(),
		},
		price:  schedule.Every(cadence.Price, func() { s.priceTick(marketID) }),
		odds:   schedule.Every(cadence.Odds, func() { s.oddsTick(marketID) }),
		volume: schedule.Every(cadence.Volume, func() { s.volumeTick(marketID) }),
	}
	s.streams[marketID] = ms
	s.mu.Unlock()

	slog.Info("market data stream started",
		"market_id", marketID,
		"price_interval", cadence.Price,
		"odds_interval", cadence.Odds,
		"volume_interval", cadence.Volume,
	)
	return ms.rec
}

// StopStream cancels all three timers for the market and removes its
// record. By the time it returns no further tick can fire. A no-op when no
// stream exists.
func (s *Scheduler) StopStream(marketID string) {
	s.mu.Lock()
	ms, ok := s.streams[marketID]
	if ok {
		delete(s.streams, marketID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	stopStream(ms)
	slog.Info("market data stream stopped", "market_id", marketID)
}

// ActiveStreams returns a snapshot of all running streams.
func (s *Scheduler) ActiveStreams() []stream.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]stream.Stream, 0, len(s.streams))
	for _, ms := range s.streams {
		out = append(out, ms.rec)
	}
	return out
}

// Close stops every stream.
func (s *Scheduler) Close() {
	s.mu.Lock()
	all := make([]*marketStream, 0, len(s.streams))
	for id, ms := range s.streams {
		all = append(all, ms)
		delete(s.streams, id)
	}
	s.mu.Unlock()

	for _, ms := range all {
		stopStream(ms)
	}
}

func stopStream(ms *marketStream) {
	ms.price.Stop()
	ms.odds.Stop()
	ms.volume.Stop()
}

func (s *Scheduler) priceTick(marketID string) {
	ctx := context.Background()
	if s.price == nil {
		if err := s.bus.UpdateLiveOdds(ctx, marketID); err != nil {
			slog.Error("price tick failed", "market_id", marketID, "error", err)
		}
		return
	}
	payload := s.price(ctx, marketID)
	if _, err := s.bus.Publish(ctx, event.TypePriceUpdate, payload, marketID, "", event.PriorityMedium); err != nil {
		slog.Error("price tick failed", "market_id", marketID, "error", err)
	}
}

func (s *Scheduler) oddsTick(marketID string) {
	if err := s.bus.UpdateLiveOdds(context.Background(), marketID); err != nil {
		slog.Error("odds tick failed", "market_id", marketID, "error", err)
	}
}

func (s *Scheduler) volumeTick(marketID string) {
	payload := event.LiquidityAddedPayload{MarketID: marketID, Volume: "1000000"}
	_, err := s.bus.Publish(context.Background(), event.TypeLiquidityAdded, payload, marketID, "", event.PriorityLow)
	if err != nil {
		slog.Error("volume tick failed", "market_id", marketID, "error", err)
	}
}
