// Package marketmap implements the market resolver over an in-memory
// mapping table. Mappings are registered at runtime, typically by the
// market service when it creates an oracle subscription for a market.
package marketmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/lucylow/kale-ndar-sub000/internal/domain"
)

// band is the open price interval inside which a market stays unresolved.
type band struct {
	lower float64
	upper float64
}

// Resolver maps oracle subscription ids to markets and applies per-market
// resolution bands. Safe for concurrent use.
type Resolver struct {
	mu sync.RWMutex

	// markets maps oracle subscription ids to market ids.
	markets map[string]string
	// bands maps market ids to their resolution bands.
	bands map[string]band
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		markets: make(map[string]string),
		bands:   make(map[string]band),
	}
}

// Register maps an oracle subscription to a market, replacing any previous
// mapping for that subscription.
func (r *Resolver) Register(subscriptionID, marketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[subscriptionID] = marketID
}

// SetResolutionBand configures the price interval for a market. A price at
// or outside either bound resolves the market. Markets without a band never
// resolve on price.
func (r *Resolver) SetResolutionBand(marketID string, lower, upper float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bands[marketID] = band{lower: lower, upper: upper}
}

// ResolveMarketForSubscription returns the market tracking the given oracle
// subscription.
func (r *Resolver) ResolveMarketForSubscription(_ context.Context, subscriptionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	marketID, ok := r.markets[subscriptionID]
	if !ok {
		return "", fmt.Errorf("oracle subscription %s: %w", subscriptionID, domain.ErrNotFound)
	}
	return marketID, nil
}

// ShouldTriggerResolution reports whether the price leaves the market's
// resolution band.
func (r *Resolver) ShouldTriggerResolution(_ context.Context, marketID string, price float64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bands[marketID]
	if !ok {
		return false, nil
	}
	return price <= b.lower || price >= b.upper, nil
}
