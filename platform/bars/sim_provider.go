package bars

import (
	"context"
	"math"

	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/prng"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// simBasePrices anchor the simulated walk per symbol, roughly matching
// where each contract traded when the registry was frozen.
var simBasePrices = map[string]float64{
	"ES":  4770,
	"MES": 4770,
	"NQ":  16800,
	"MNQ": 16800,
	"YM":  37600,
	"MYM": 37600,
	"RTY": 2010,
	"M2K": 2010,
	"CL":  72,
	"GC":  2050,
}

// SimProvider generates bars with a seeded mean-reverting walk. It exists
// for TRIALS calibration runs when no real feed is configured, and it is
// deterministic: the same seed always produces the same bars. Prices clamp
// to the instrument's plausible bounds and round to tick so simulated data
// passes the same validation as real data.
type SimProvider struct {
	seed uint32
}

// NewSimProvider returns a simulated provider drawing from the given seed.
func NewSimProvider(seed uint32) *SimProvider {
	return &SimProvider{seed: seed}
}

// Name implements Provider.
func (p *SimProvider) Name() string { return "simulated" }

// Available implements Provider. The simulator is always available; whether
// callers are allowed to use it is the executor's decision.
func (p *SimProvider) Available() bool { return true }

// FetchBars implements Provider.
func (p *SimProvider) FetchBars(_ context.Context, req FetchRequest) (*FetchResult, error) {
	inst, err := instruments.Get(req.Symbol)
	if err != nil {
		return nil, err
	}
	base, ok := simBasePrices[req.Symbol]
	if !ok {
		base = 1000
	}
	lo, hi := priceBounds(inst)
	tick, _ := inst.TickSize.Float64()
	rng := prng.New(p.seed)

	step := req.Timeframe.Duration()
	price := base
	var out []Bar
	for ts := req.Start.UTC().Truncate(step); ts.Before(req.End); ts = ts.Add(step) {
		// Mean-reverting drift plus noise scaled to the base price.
		drift := (base - price) * 0.002
		noise := rng.Norm() * base * 0.0008
		open := clampTick(price, lo, hi, tick)
		close := clampTick(price+drift+noise, lo, hi, tick)
		high := clampTick(math.Max(open, close)+math.Abs(rng.Norm())*base*0.0004, lo, hi, tick)
		low := clampTick(math.Min(open, close)-math.Abs(rng.Norm())*base*0.0004, lo, hi, tick)
		volume := math.Floor(500 + rng.Float64()*1500)
		out = append(out, Bar{Time: ts, Open: open, High: high, Low: low, Close: close, Volume: volume})
		price = close
	}
	return &FetchResult{
		Bars: out,
		Provenance: types.DataProvenance{
			Provider:  p.Name(),
			Dataset:   "sim.mean-reverting-walk",
			Schema:    "ohlcv-" + string(req.Timeframe),
			Simulated: true,
		},
	}, nil
}

// clampTick bounds a price and snaps it onto the tick grid.
func clampTick(price, lo, hi, tick float64) float64 {
	if price < lo {
		price = lo
	}
	if price > hi {
		price = hi
	}
	if tick > 0 {
		price = math.Round(price/tick) * tick
	}
	return price
}
