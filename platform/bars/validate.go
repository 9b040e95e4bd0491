package bars

import (
	"fmt"
	"math"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
)

// maxValidationErrors caps how many per-bar failures are collected before
// the validator gives up. Three is enough to diagnose a bad feed; thousands
// would just flood the session row.
const maxValidationErrors = 3

// priceBounds returns the plausible price window for an instrument. Bars
// outside it indicate a corrupted feed or a mislabeled symbol, not a market
// move.
func priceBounds(inst instruments.Instrument) (lo, hi float64) {
	switch inst.Sector {
	case instruments.SectorEnergy:
		return 1, 500
	case instruments.SectorMetals:
		return 100, 10000
	default:
		return 100, 100000
	}
}

// tickAligned reports whether price sits on the instrument's tick grid,
// within float tolerance.
func tickAligned(price, tick float64) bool {
	if tick <= 0 {
		return false
	}
	ratio := price / tick
	return math.Abs(ratio-math.Round(ratio)) < 1e-6
}

// Validate checks every bar against the instrument's rules: OHLC
// consistency, tick alignment, price bounds, and forward time continuity.
// Up to three error strings are aggregated; any error fails the whole set
// with BAR_VALIDATION_FAILED. The executor runs fail-closed: it would
// rather refuse a backtest than price trades on a malformed feed.
func Validate(symbol string, bs []Bar) error {
	inst, err := instruments.Get(symbol)
	if err != nil {
		return err
	}
	lo, hi := priceBounds(inst)
	tick, _ := inst.TickSize.Float64()

	var errs []string
	add := func(format string, args ...interface{}) bool {
		errs = append(errs, fmt.Sprintf(format, args...))
		return len(errs) >= maxValidationErrors
	}

	for i, b := range bs {
		if b.High < b.Low {
			if add("bar %d: high %v below low %v", i, b.High, b.Low) {
				break
			}
			continue
		}
		if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
			if add("bar %d: open/close outside high-low range", i) {
				break
			}
			continue
		}
		if b.Low < lo || b.High > hi {
			if add("bar %d: price outside %s bounds [%v, %v]", i, symbol, lo, hi) {
				break
			}
			continue
		}
		if !tickAligned(b.Open, tick) || !tickAligned(b.High, tick) || !tickAligned(b.Low, tick) || !tickAligned(b.Close, tick) {
			if add("bar %d: price not aligned to tick %v", i, tick) {
				break
			}
			continue
		}
		if b.Volume < 0 {
			if add("bar %d: negative volume %v", i, b.Volume) {
				break
			}
			continue
		}
		if i > 0 && !bs[i].Time.After(bs[i-1].Time) {
			if add("bar %d: timestamp %v does not advance past %v", i, b.Time, bs[i-1].Time) {
				break
			}
		}
	}
	if len(errs) > 0 {
		return errclass.Newf(errclass.BarValidationFailed, "%d validation error(s): %v", len(errs), errs)
	}
	return nil
}
