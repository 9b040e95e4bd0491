package evolution

import (
	"math"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// Component normalization scales. Each component maps onto [0, 1]: a Sharpe
// of 3 saturates, profit factor saturates at 3 (a PF of 1 scores zero), a
// 60% win rate saturates, a 20% drawdown zeroes its component, and $50 of
// per-trade expectancy saturates.
const (
	fitSharpeScale     = 3.0
	fitProfitCap       = 3.0
	fitWinRateScale    = 60.0
	fitDrawdownScale   = 20.0
	fitExpectancyScale = 50.0
)

// Fitness folds a metrics snapshot into one composite score in [0, 1] using
// the configured component weights. Nil metrics and zero-trade snapshots
// score zero; they carry no evidence either way.
func Fitness(m *types.BaselineMetrics) float64 {
	if m == nil || m.TotalTrades == 0 {
		return 0
	}
	cfg := params.Platform()

	sharpe := clamp01(deref(m.Sharpe) / fitSharpeScale)
	profit := clamp01((math.Min(deref(m.ProfitFactor), fitProfitCap) - 1) / (fitProfitCap - 1))
	winRate := clamp01(deref(m.WinRate) / fitWinRateScale)
	drawdown := clamp01(1 - deref(m.MaxDrawdownPct)/fitDrawdownScale)
	expectancy := 0.0
	if m.Expectancy != nil {
		e, _ := m.Expectancy.Float64()
		expectancy = clamp01(e / fitExpectancyScale)
	}

	return cfg.FitnessWeightSharpe*sharpe +
		cfg.FitnessWeightProfit*profit +
		cfg.FitnessWeightWinRate*winRate +
		cfg.FitnessWeightDrawdown*drawdown +
		cfg.FitnessWeightExpectancy*expectancy
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
