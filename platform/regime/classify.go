package regime

import (
	"math"

	"github.com/gauntletlabs/gauntlet/platform/bars"
)

// Classification thresholds on daily-bar features. A daily return stddev of
// 2% is crisis territory for index futures; 0.5% barely moves the tape.
const (
	minBars      = 20
	highVolDaily = 0.020
	lowVolDaily  = 0.005
	trendBull    = 0.3
	trendBear    = -0.3

	// A sideways window still pulling past this much in one direction is a
	// conflicted signal, not a stable range.
	transitionBand = 0.15
)

// ComputeFeatures reduces a daily-bar window to the measurements the
// classifier reads. The window arrives oldest-first, the order GetBars
// serves.
func ComputeFeatures(window []bars.Bar) Features {
	f := Features{Bars: len(window)}
	if len(window) < 2 {
		return f
	}

	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (window[i].Close-prev)/prev)
	}
	if len(returns) == 0 {
		return f
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	f.AvgReturn = sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - f.AvgReturn
		variance += d * d
	}
	f.Volatility = math.Sqrt(variance / float64(len(returns)))

	f.TrendStrength = trendStrength(window)
	f.PriceRangePct = priceRange(window)
	f.VolumeRatio = volumeRatio(window)
	return f
}

// ClassifyMarket labels a feature set. Volatility is checked before trend:
// a violent tape is HIGH_VOLATILITY even when it trends, because sizing
// cares about the violence first. A quiet steady climb is still BULL;
// LOW_VOLATILITY is reserved for directionless compression.
func ClassifyMarket(f Features) MarketRegime {
	if f.Bars < minBars {
		return MarketUnknown
	}
	switch {
	case f.Volatility >= highVolDaily:
		return MarketHighVol
	case f.TrendStrength >= trendBull:
		return MarketBull
	case f.TrendStrength <= trendBear:
		return MarketBear
	case f.Volatility <= lowVolDaily:
		return MarketLowVol
	default:
		return MarketSideways
	}
}

// Unify folds market and macro into the label the guidance matrix keys on.
// Macro only splits the trending regimes; volatility extremes dominate
// whatever the economy is doing.
func Unify(market MarketRegime, macro MacroRegime, f Features) UnifiedRegime {
	switch market {
	case MarketHighVol:
		return HighVolCrisis
	case MarketLowVol:
		return LowVolCompression
	case MarketBull:
		if macro == MacroContraction || macro == MacroRecession {
			return BullContraction
		}
		return BullExpansion
	case MarketBear:
		if macro == MacroRecession {
			return BearRecession
		}
		return BearExpansion
	case MarketSideways:
		if math.Abs(f.TrendStrength) >= transitionBand {
			return Transition
		}
		return SidewaysStable
	default:
		return Unknown
	}
}

// trendStrength blends two reads of direction: the spread between a short
// and a long moving average, normalized so a 2% spread saturates, and the
// fraction of up days. Both land in [-1, 1]; the blend is their mean.
func trendStrength(window []bars.Bar) float64 {
	short := movingAverage(window, 5)
	long := movingAverage(window, 20)
	if long == 0 {
		return 0
	}
	spread := clamp((short-long)/(long*0.02), -1, 1)

	up := 0
	for i := 1; i < len(window); i++ {
		if window[i].Close > window[i-1].Close {
			up++
		}
	}
	bias := 2*float64(up)/float64(len(window)-1) - 1

	return (spread + bias) / 2
}

func movingAverage(window []bars.Bar, n int) float64 {
	if n > len(window) {
		n = len(window)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, b := range window[len(window)-n:] {
		sum += b.Close
	}
	return sum / float64(n)
}

func priceRange(window []bars.Bar) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range window {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	if lo <= 0 || math.IsInf(lo, 1) {
		return 0
	}
	return (hi - lo) / lo
}

// volumeRatio compares the last five sessions against the whole window.
// Above 1 means activity is picking up.
func volumeRatio(window []bars.Bar) float64 {
	var total float64
	for _, b := range window {
		total += b.Volume
	}
	if total == 0 {
		return 0
	}
	avg := total / float64(len(window))

	n := 5
	if n > len(window) {
		n = len(window)
	}
	var recent float64
	for _, b := range window[len(window)-n:] {
		recent += b.Volume
	}
	return (recent / float64(n)) / avg
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
