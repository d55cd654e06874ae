// Package oracle defines the contracts this subsystem consumes from the
// market domain during webhook processing. Both are owned elsewhere; only
// the call boundary is specified here.
package oracle

import "context"

// MarketResolver maps oracle price feeds onto markets and decides when a
// price movement resolves one.
type MarketResolver interface {
	// ResolveMarketForSubscription returns the market tracking the given
	// oracle subscription, or domain.ErrNotFound when none does.
	ResolveMarketForSubscription(ctx context.Context, subscriptionID string) (marketID string, err error)

	// ShouldTriggerResolution reports whether the observed price resolves
	// the market.
	ShouldTriggerResolution(ctx context.Context, marketID string, price float64) (bool, error)
}
