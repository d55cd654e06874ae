package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lucylow/kale-ndar-sub000/internal/domain/event"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/stream"
)

// tickRecorder implements OddsPublisher and counts bus calls per market.
type tickRecorder struct {
	mu        sync.Mutex
	published map[event.Type]int
	odds      int
}

func newTickRecorder() *tickRecorder {
	return &tickRecorder{published: make(map[event.Type]int)}
}

func (r *tickRecorder) Publish(_ context.Context, t event.Type, _ any, _, _ string, _ event.Priority) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[t]++
	return "ev-1", nil
}

func (r *tickRecorder) UpdateLiveOdds(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.odds++
	return nil
}

func (r *tickRecorder) counts() (map[event.Type]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[event.Type]int, len(r.published))
	for k, v := range r.published {
		out[k] = v
	}
	return out, r.odds
}

func shortCadence() stream.Cadence {
	return stream.Cadence{
		Price:  5 * time.Millisecond,
		Odds:   5 * time.Millisecond,
		Volume: 5 * time.Millisecond,
	}
}

func TestSchedulerTicksAllThreeTimers(t *testing.T) {
	bus := newTickRecorder()
	s := NewScheduler(bus, shortCadence())
	defer s.Close()

	rec := s.StartStream("mkt-1", stream.Cadence{})
	if !rec.IsActive || rec.MarketID != "mkt-1" {
		t.Fatalf("stream record = %+v", rec)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		published, odds := bus.counts()
		if odds >= 2 && published[event.TypeLiquidityAdded] >= 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	published, odds := bus.counts()
	t.Fatalf("timers did not tick: odds=%d published=%v", odds, published)
}

func TestSchedulerPriceFnPublishesPriceUpdates(t *testing.T) {
	bus := newTickRecorder()
	s := NewScheduler(bus, shortCadence())
	defer s.Close()

	s.SetPriceFn(func(_ context.Context, _ string) event.PriceUpdatePayload {
		return event.PriceUpdatePayload{Price: "100"}
	})
	s.StartStream("mkt-1", stream.Cadence{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		published, _ := bus.counts()
		if published[event.TypePriceUpdate] >= 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("price ticks never published price_update")
}

func TestStopStreamHaltsTicks(t *testing.T) {
	bus := newTickRecorder()
	s := NewScheduler(bus, shortCadence())
	defer s.Close()

	s.StartStream("mkt-1", stream.Cadence{})
	time.Sleep(20 * time.Millisecond)
	s.StopStream("mkt-1")

	_, oddsAfterStop := bus.counts()
	time.Sleep(30 * time.Millisecond)
	_, oddsLater := bus.counts()
	if oddsLater != oddsAfterStop {
		t.Errorf("ticks after StopStream: %d -> %d", oddsAfterStop, oddsLater)
	}

	if got := s.ActiveStreams(); len(got) != 0 {
		t.Errorf("ActiveStreams after stop = %v, want none", got)
	}

	// Stopping again is a no-op.
	s.StopStream("mkt-1")
}

func TestStartStreamReplacesExisting(t *testing.T) {
	bus := newTickRecorder()
	s := NewScheduler(bus, shortCadence())
	defer s.Close()

	s.StartStream("mkt-1", stream.Cadence{})
	s.StartStream("mkt-1", stream.Cadence{Price: time.Hour, Odds: time.Hour, Volume: time.Hour})

	streams := s.ActiveStreams()
	if len(streams) != 1 {
		t.Fatalf("ActiveStreams = %d, want 1", len(streams))
	}
	if streams[0].Cadence.Price != time.Hour {
		t.Errorf("cadence = %v, want replaced stream's cadence", streams[0].Cadence)
	}

	// The replaced stream's timers are gone; with hour-long intervals the
	// counters stay flat from here.
	_, before := bus.counts()
	time.Sleep(30 * time.Millisecond)
	_, after := bus.counts()
	if after != before {
		t.Errorf("old timers still ticking: %d -> %d", before, after)
	}
}

func TestConcurrentStartStreamLeavesOneStream(t *testing.T) {
	bus := newTickRecorder()
	s := NewScheduler(bus, stream.Cadence{
		Price:  time.Millisecond,
		Odds:   time.Millisecond,
		Volume: time.Millisecond,
	})
	defer s.Close()

	// Two racing starters per round; whichever loses the replace race must
	// still have its timers cancelled, or they tick beyond StopStream's
	// reach.
	for round := 0; round < 200; round++ {
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func() {
				defer wg.Done()
				s.StartStream("mkt-1", stream.Cadence{})
			}()
		}
		wg.Wait()
	}

	if got := s.ActiveStreams(); len(got) != 1 {
		t.Fatalf("ActiveStreams = %d, want 1", len(got))
	}

	s.StopStream("mkt-1")
	_, oddsAfterStop := bus.counts()
	time.Sleep(30 * time.Millisecond)
	_, oddsLater := bus.counts()
	if oddsLater != oddsAfterStop {
		t.Errorf("orphaned timers ticking after StopStream: %d -> %d", oddsAfterStop, oddsLater)
	}
}
