package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/shopspring/decimal"
)

// position is one open simulated position. Prices stay float64 here because
// they only feed trigger comparisons; money conversion happens once, at
// close, through tradePnl.
type position struct {
	side       types.Side
	qty        int
	entryPrice float64
	entryTime  time.Time
	holdBars   int
	stop       float64
	target     float64
	trailArmed bool
	trailStop  float64
	best       float64 // Most favorable price seen since entry.
	reason     string
}

// openPosition fills a pending signal at the bar's open, per the
// NEXT_BAR_OPEN fill model. Stop and target are fixed at fill time.
func openPosition(r *strategy.StrategyRules, sig strategy.Signal, b bars.Bar, tick float64) *position {
	entry := snapTick(b.Open, tick)
	p := &position{
		side:       sig.Side,
		qty:        r.Risk.MaxPositionSize,
		entryPrice: entry,
		entryTime:  b.Time,
		best:       entry,
		reason:     sig.Reason,
	}
	stopDist := r.Exits.StopLossTicks * tick
	targetDist := r.Exits.TakeProfitTicks * tick
	if sig.Side == types.Long {
		p.stop = snapTick(entry-stopDist, tick)
		p.target = snapTick(entry+targetDist, tick)
	} else {
		p.stop = snapTick(entry+stopDist, tick)
		p.target = snapTick(entry-targetDist, tick)
	}
	return p
}

// managePosition advances the position by one held bar and reports whether
// an exit triggered. The order is fixed: hold count, best-price update,
// trailing-stop update, then stop, target, trailing, time. Exit price is the
// triggering level; the time stop exits at the bar close.
func managePosition(p *position, r *strategy.StrategyRules, b bars.Bar, tick float64) (float64, string, bool) {
	p.holdBars++
	if p.side == types.Long {
		if b.High > p.best {
			p.best = b.High
		}
	} else if b.Low < p.best {
		p.best = b.Low
	}
	if r.Exits.Trailing != nil {
		updateTrail(p, r.Exits.Trailing, tick)
	}

	if p.side == types.Long {
		if b.Low <= p.stop {
			return p.stop, types.ExitStopLoss, true
		}
		if b.High >= p.target {
			return p.target, types.ExitTakeProfit, true
		}
		if p.trailArmed && b.Low <= p.trailStop {
			return p.trailStop, types.ExitTrailingStop, true
		}
	} else {
		if b.High >= p.stop {
			return p.stop, types.ExitStopLoss, true
		}
		if b.Low <= p.target {
			return p.target, types.ExitTakeProfit, true
		}
		if p.trailArmed && b.High >= p.trailStop {
			return p.trailStop, types.ExitTrailingStop, true
		}
	}
	if r.Exits.TimeStopBars > 0 && p.holdBars >= r.Exits.TimeStopBars {
		return b.Close, types.ExitTimeStop, true
	}
	return 0, "", false
}

// updateTrail arms the trailing stop once the position has ActivationTicks
// of favorable movement, then ratchets it behind the best price. The stop
// only ever tightens.
func updateTrail(p *position, tr *strategy.TrailingStop, tick float64) {
	activation := tr.ActivationTicks * tick
	trail := tr.TrailTicks * tick
	if p.side == types.Long {
		if !p.trailArmed && p.best-p.entryPrice >= activation {
			p.trailArmed = true
			p.trailStop = p.best - trail
		} else if p.trailArmed && p.best-trail > p.trailStop {
			p.trailStop = p.best - trail
		}
	} else {
		if !p.trailArmed && p.entryPrice-p.best >= activation {
			p.trailArmed = true
			p.trailStop = p.best + trail
		} else if p.trailArmed && p.best+trail < p.trailStop {
			p.trailStop = p.best + trail
		}
	}
}

// runLoop drives the bar-by-bar simulation: indicator warmup, the session
// and blackout filters, pending-signal fills, position management, and entry
// evaluation. It returns the closed trades and the count of bars that passed
// the session filter.
func runLoop(sess *types.BacktestSession, inst instruments.Instrument, r *strategy.StrategyRules, profile strategy.ExecutionProfile, series []bars.Bar) ([]*types.TradeLog, int) {
	tick, _ := inst.TickSize.Float64()
	ind := newIndicatorSet(tick, r.Entry.LookbackBars)
	warmup := params.Platform().BarWarmupCount

	var (
		trades        []*types.TradeLog
		pos           *position
		pending       *strategy.Signal
		inSessionBars int
	)
	closeTrade := func(b bars.Bar, exitPrice float64, reason string) {
		trades = append(trades, buildTrade(sess, inst, r, profile, pos, len(trades), b.Time, snapTick(exitPrice, tick), reason))
		pos = nil
	}

	for i, b := range series {
		st := ind.observe(b)
		if i < warmup {
			continue
		}

		// Outside the session an open position closes at the bar open; a
		// flat bot skips. A pending fill never survives the boundary.
		if !strategy.InSession(r, profile, b.Time) {
			pending = nil
			if pos != nil {
				closeTrade(b, b.Open, types.ExitSessionEnd)
			}
			continue
		}
		inSessionBars++

		// Blackout bars suppress all activity but keep positions open.
		if strategy.InBlackout(r, profile, b.Time) {
			pending = nil
			continue
		}

		if pos == nil && pending != nil {
			pos = openPosition(r, *pending, b, tick)
			pending = nil
		}
		if pos != nil {
			if exitPrice, reason, done := managePosition(pos, r, b, tick); done {
				closeTrade(b, exitPrice, reason)
			}
			continue
		}
		if sig, ok := strategy.EvaluateEntry(r, profile, st); ok {
			pending = &sig
		}
	}

	// Data exhausted with a position still open: flatten at the last close.
	if pos != nil {
		last := series[len(series)-1]
		closeTrade(last, last.Close, types.ExitEndOfData)
	}
	return trades, inSessionBars
}

// buildTrade converts a closed position into its persisted row. Trade IDs
// derive from the session and insert order, so a replayed session produces
// byte-identical rows.
func buildTrade(sess *types.BacktestSession, inst instruments.Instrument, r *strategy.StrategyRules, profile strategy.ExecutionProfile, p *position, seq int, exitTime time.Time, exitPrice float64, reason string) *types.TradeLog {
	gross, fees, slippage, net := tradePnl(inst, p.side, p.qty, p.entryPrice, exitPrice, r.Risk.SlippageTicks)
	return &types.TradeLog{
		ID:                fmt.Sprintf("%s-t%04d", sess.ID, seq),
		BacktestSessionID: sess.ID,
		BotID:             sess.BotID,
		Symbol:            inst.Symbol,
		Side:              p.side,
		Quantity:          p.qty,
		EntryTime:         p.entryTime,
		ExitTime:          exitTime,
		EntryPrice:        decimal.NewFromFloat(p.entryPrice),
		ExitPrice:         decimal.NewFromFloat(exitPrice),
		EntryReasonCode:   p.reason,
		ExitReason:        reason,
		HoldBars:          p.holdBars,
		GrossPnl:          gross,
		Fees:              fees,
		Slippage:          slippage,
		NetPnl:            net,
		Metadata: types.TradeMetadata{
			TraceID:      sess.ID,
			RuleVersion:  r.Version,
			RulesProfile: string(profile.Profile),
		},
	}
}

func snapTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
