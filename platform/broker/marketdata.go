package broker

import (
	"context"

	"github.com/gauntletlabs/gauntlet/platform/bars"
)

// GuardedProvider wraps a bar provider with the market-data resilience
// class: its own timeout, retry budget, and circuit breaker, looser than
// the order path's.
type GuardedProvider struct {
	inner bars.Provider
	guard *Guard
}

// NewGuardedProvider wraps a provider. A tripped breaker surfaces as a
// transient fetch error, which the bar cache treats as a provider failure.
func NewGuardedProvider(inner bars.Provider) *GuardedProvider {
	return &GuardedProvider{
		inner: inner,
		guard: NewGuard("marketdata-"+inner.Name(), ClassMarketData),
	}
}

// Name identifies the wrapped provider in provenance records.
func (g *GuardedProvider) Name() string { return g.inner.Name() }

// Available reports the wrapped provider's availability.
func (g *GuardedProvider) Available() bool { return g.inner.Available() }

// FetchBars routes the fetch through the market-data guard.
func (g *GuardedProvider) FetchBars(ctx context.Context, req bars.FetchRequest) (*bars.FetchResult, error) {
	var result *bars.FetchResult
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = g.inner.FetchBars(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
