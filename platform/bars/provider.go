package bars

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
)

// FetchRequest asks a provider for a bar range. Start and End are UTC;
// TraceID follows the request into provider logs and lock values.
type FetchRequest struct {
	Symbol    string
	Timeframe Timeframe
	Start     time.Time
	End       time.Time
	TraceID   string
}

// FetchResult carries the bars plus the provenance fields a backtest
// session must be able to replay and attest.
type FetchResult struct {
	Bars       []Bar
	Provenance types.DataProvenance
}

// Provider fetches historical bars. Implementations must return bars
// ordered ascending by time, in UTC, at the requested timeframe; 1-minute
// sources may resample locally with Resample.
type Provider interface {
	// Name identifies the provider in provenance records.
	Name() string
	// Available reports whether the provider can serve requests right now
	// (credentials present, connection healthy).
	Available() bool
	// FetchBars retrieves one range. The context carries the caller's
	// deadline; a provider must never return partial data with a nil error.
	FetchBars(ctx context.Context, req FetchRequest) (*FetchResult, error)
}
