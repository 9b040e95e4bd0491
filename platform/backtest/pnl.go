package backtest

import (
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// tradePnl computes one closed trade's money outcome. Everything here is
// decimal: entry and exit arrive tick-aligned, so the tick division is exact
// and no binary float error ever reaches a persisted dollar amount.
//
//	tickValue = pointValue * tickSize
//	ticks     = (exit - entry)/tickSize, negated for SHORT
//	gross     = ticks * tickValue * qty
//	fees      = commission * 2 * qty
//	slippage  = slippageTicks * tickValue * 2 * qty
//	net       = gross - fees - slippage
func tradePnl(inst instruments.Instrument, side types.Side, qty int, entry, exit, slippageTicks float64) (gross, fees, slippage, net decimal.Decimal) {
	tickValue := inst.TickValue()
	qtyD := decimal.NewFromInt(int64(qty))

	ticks := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry)).Div(inst.TickSize)
	if side == types.Short {
		ticks = ticks.Neg()
	}
	gross = ticks.Mul(tickValue).Mul(qtyD)
	fees = inst.Commission.Mul(two).Mul(qtyD)
	slippage = decimal.NewFromFloat(slippageTicks).Mul(tickValue).Mul(two).Mul(qtyD)
	net = gross.Sub(fees).Sub(slippage)
	return gross, fees, slippage, net
}
