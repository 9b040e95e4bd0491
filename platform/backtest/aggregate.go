package backtest

import (
	"math"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// aggregate reduces the closed trades to session metrics and an equity
// curve. A completed session populates every nullable metric; a non-finite
// intermediate value fails the whole aggregation with CALCULATION_ERROR
// rather than persisting garbage.
func aggregate(trades []*types.TradeLog, initialCapital decimal.Decimal) (types.SessionMetrics, []types.EquityPoint, error) {
	m := types.SessionMetrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m, nil, nil
	}

	netTotal := decimal.Zero
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	equity := initialCapital
	peak := initialCapital
	curve := make([]types.EquityPoint, 0, len(trades))
	returns := make([]float64, 0, len(trades))
	capF, _ := initialCapital.Float64()
	maxDD := 0.0

	for _, tr := range trades {
		netTotal = netTotal.Add(tr.NetPnl)
		switch tr.NetPnl.Sign() {
		case 1:
			m.WinningTrades++
			grossWin = grossWin.Add(tr.NetPnl)
		case -1:
			m.LosingTrades++
			grossLoss = grossLoss.Add(tr.NetPnl.Neg())
		}
		netF, _ := tr.NetPnl.Float64()
		returns = append(returns, netF/capF)

		equity = equity.Add(tr.NetPnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		dd := 0.0
		if peak.Sign() > 0 {
			dd, _ = peak.Sub(equity).Div(peak).Mul(hundred).Float64()
		}
		if dd > maxDD {
			maxDD = dd
		}
		curve = append(curve, types.EquityPoint{Time: tr.ExitTime, Equity: equity, DrawdownPct: dd})
	}

	cfg := params.Platform()
	winRate := float64(m.WinningTrades) / float64(m.TotalTrades) * 100

	// Profit factor reports the cap when there is nothing in the loss
	// column; a computed value above the cap also clamps so the gate math
	// upstream stays bounded.
	pf := cfg.ProfitFactorCap
	if grossLoss.Sign() > 0 {
		pf, _ = grossWin.Div(grossLoss).Float64()
		if pf > cfg.ProfitFactorCap {
			pf = cfg.ProfitFactorCap
		}
	}

	sharpe := sharpeRatio(returns, cfg.SharpeAnnualization)
	expectancy := netTotal.Div(decimal.NewFromInt(int64(m.TotalTrades)))

	for _, v := range []float64{winRate, pf, sharpe, maxDD} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return m, nil, errclass.Newf(errclass.CalculationError,
				"non-finite metric aggregating %d trades", m.TotalTrades)
		}
	}

	m.WinRate = &winRate
	m.NetPnl = &netTotal
	m.ProfitFactor = &pf
	m.Sharpe = &sharpe
	m.MaxDrawdownPct = &maxDD
	m.Expectancy = &expectancy
	return m, curve, nil
}

// sharpeRatio annualizes the mean-over-stddev of per-trade returns. A flat
// return series has no dispersion to normalize by and reports zero.
func sharpeRatio(returns []float64, annualization float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * annualization
}
