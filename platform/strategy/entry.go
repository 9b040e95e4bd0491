package strategy

import (
	"math"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// MarketState is everything the rule evaluators may look at for one bar.
// The executor owns the indicator state machines and fills this snapshot
// per bar; evaluation itself is pure.
type MarketState struct {
	Bar       bars.Bar
	PrevClose float64
	TickSize  float64

	EMA9  float64
	EMA20 float64
	EMA21 float64
	SMA50 float64
	VWAP  float64
	RSI14 float64
	ATR14 float64

	// Momentum is close minus the close ten bars back, in price points.
	Momentum float64

	DailyOpen     float64
	DailyHigh     float64
	DailyLow      float64
	PrevDailyOpen float64

	// RangeHigh/Low cover the lookback window ending at the prior bar.
	RangeHigh float64
	RangeLow  float64

	// AvgVolume is the 20-bar trailing mean.
	AvgVolume float64

	BarsSinceOpen int
}

// Signal is a confirmed entry decision.
type Signal struct {
	Side   types.Side
	Reason string // Canonical entry condition that fired.
}

// EvaluateEntry runs the full flat-side decision for one bar: the
// archetype's entry predicate, then every confirmation, then every
// invalidation. One failure anywhere rejects the signal.
func EvaluateEntry(r *StrategyRules, p ExecutionProfile, st *MarketState) (Signal, bool) {
	side, ok := evalPredicate(&r.Entry, p, st)
	if !ok {
		return Signal{}, false
	}
	if !checkConfirmations(&r.Confirmations, p, st, side) {
		return Signal{}, false
	}
	if !checkInvalidations(r, p, st) {
		return Signal{}, false
	}
	return Signal{Side: side, Reason: string(r.Entry.Type)}, true
}

// evalPredicate dispatches on the entry condition family. The switch is
// exhaustive over the canonical alphabet; an unknown type never fires.
func evalPredicate(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	switch e.Type {
	case Breakout:
		return evalBreakout(e, p, st)
	case MeanReversion:
		return evalMeanReversion(e, p, st)
	case VWAPTouch:
		return evalVWAPTouch(e, p, st)
	case TrendContinuation:
		return evalTrendContinuation(e, p, st)
	case GapFade:
		return evalGap(e, p, st, false)
	case GapFill:
		return evalGap(e, p, st, true)
	case Reversal:
		return evalReversal(e, p, st)
	case RangeScalp:
		return evalRangeScalp(e, p, st)
	case MomentumSurge:
		return evalMomentumSurge(e, p, st)
	}
	return "", false
}

// evalBreakout fires when the close clears the lookback range by the
// threshold.
func evalBreakout(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	thr := p.scaleThreshold(e.BreakoutThresholdTicks) * st.TickSize
	if st.RangeHigh <= 0 || st.RangeLow <= 0 {
		return "", false
	}
	if st.Bar.Close > st.RangeHigh+thr {
		return types.Long, true
	}
	if st.Bar.Close < st.RangeLow-thr {
		return types.Short, true
	}
	return "", false
}

// evalMeanReversion fires at an RSI extreme with price stretched from VWAP.
func evalMeanReversion(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	if st.ATR14 <= 0 {
		return "", false
	}
	oversold, overbought := p.rsiBands(e.RSIOversold, e.RSIOverbought)
	dev := p.scaleThreshold(e.VWAPDeviationATR)
	stretch := (st.Bar.Close - st.VWAP) / st.ATR14
	if st.RSI14 < oversold && -stretch > dev {
		return types.Long, true
	}
	if st.RSI14 > overbought && stretch > dev {
		return types.Short, true
	}
	return "", false
}

// evalVWAPTouch fires when price sits inside the VWAP band, optionally
// requiring a cross back over VWAP on this bar. Relaxed entry waives the
// reclaim.
func evalVWAPTouch(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	band := e.VWAPBandTicks * st.TickSize
	if band <= 0 || math.Abs(st.Bar.Close-st.VWAP) > band {
		return "", false
	}
	var side types.Side
	if st.Bar.Close >= st.VWAP {
		side = types.Long
	} else {
		side = types.Short
	}
	if e.RequireReclaim && !p.RelaxedEntry {
		reclaimedUp := st.PrevClose < st.VWAP && st.Bar.Close >= st.VWAP
		reclaimedDown := st.PrevClose > st.VWAP && st.Bar.Close <= st.VWAP
		if side == types.Long && !reclaimedUp {
			return "", false
		}
		if side == types.Short && !reclaimedDown {
			return "", false
		}
	}
	return side, true
}

// evalTrendContinuation fires on a fast/slow EMA split with the close on
// the trend side. Momentum sign agreement is waived under relaxed entry.
func evalTrendContinuation(_ *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	if st.EMA9 > st.EMA20 && st.Bar.Close > st.EMA9 {
		if p.RelaxedEntry || st.Momentum > 0 {
			return types.Long, true
		}
		return "", false
	}
	if st.EMA9 < st.EMA20 && st.Bar.Close < st.EMA9 {
		if p.RelaxedEntry || st.Momentum < 0 {
			return types.Short, true
		}
	}
	return "", false
}

// evalGap fades an open-to-prior-open gap bigger than the threshold. The
// fill variant additionally waits for the retrace to start.
func evalGap(e *EntryRule, p ExecutionProfile, st *MarketState, fill bool) (types.Side, bool) {
	if st.ATR14 <= 0 || st.PrevDailyOpen <= 0 {
		return "", false
	}
	gap := (st.DailyOpen - st.PrevDailyOpen) / st.ATR14
	thr := p.scaleThreshold(e.GapThresholdATR)
	switch {
	case gap > thr: // Gapped up; trade back down.
		if fill && st.Bar.Close >= st.DailyOpen {
			return "", false
		}
		return types.Short, true
	case gap < -thr: // Gapped down; trade back up.
		if fill && st.Bar.Close <= st.DailyOpen {
			return "", false
		}
		return types.Long, true
	}
	return "", false
}

// evalReversal fires at a fresh lookback extreme with an RSI extreme,
// requiring the bar itself to turn unless entries are relaxed.
func evalReversal(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	if st.RangeHigh <= 0 || st.RangeLow <= 0 {
		return "", false
	}
	oversold, overbought := p.rsiBands(e.RSIOversold, e.RSIOverbought)
	if st.Bar.Low <= st.RangeLow && st.RSI14 < oversold {
		if p.RelaxedEntry || st.Bar.Close > st.Bar.Open {
			return types.Long, true
		}
		return "", false
	}
	if st.Bar.High >= st.RangeHigh && st.RSI14 > overbought {
		if p.RelaxedEntry || st.Bar.Close < st.Bar.Open {
			return types.Short, true
		}
	}
	return "", false
}

// evalRangeScalp fires at the edge of a tight lookback range: long at the
// bottom band, short at the top. Lowered thresholds accept looser ranges.
func evalRangeScalp(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	if st.ATR14 <= 0 || st.RangeHigh <= st.RangeLow {
		return "", false
	}
	span := st.RangeHigh - st.RangeLow
	maxSpan := e.RangeMaxATR * st.ATR14
	if p.LowerThresholds {
		maxSpan *= 1.5
	}
	if span > maxSpan {
		return "", false
	}
	band := e.BandFraction
	if p.RelaxedEntry {
		band += 0.10
	}
	if st.Bar.Close <= st.RangeLow+span*band {
		return types.Long, true
	}
	if st.Bar.Close >= st.RangeHigh-span*band {
		return types.Short, true
	}
	return "", false
}

// evalMomentumSurge fires on full EMA alignment with momentum beyond the
// tick threshold. Volume participation is enforced by the confirmation
// block.
func evalMomentumSurge(e *EntryRule, p ExecutionProfile, st *MarketState) (types.Side, bool) {
	thr := p.scaleThreshold(e.MomentumTicks) * st.TickSize
	if st.EMA9 > st.EMA20 && st.EMA20 > st.EMA21 && st.Bar.Close > st.EMA9 && st.Momentum >= thr {
		return types.Long, true
	}
	if st.EMA9 < st.EMA20 && st.EMA20 < st.EMA21 && st.Bar.Close < st.EMA9 && st.Momentum <= -thr {
		return types.Short, true
	}
	return "", false
}

// checkConfirmations applies the confirmation block to a tentative signal.
func checkConfirmations(c *Confirmations, p ExecutionProfile, st *MarketState, side types.Side) bool {
	if c.VolumeMultiple > 0 && !p.SkipVolumeConfirm {
		if st.AvgVolume <= 0 || st.Bar.Volume < c.VolumeMultiple*st.AvgVolume {
			return false
		}
	}
	if c.RequireTrendSide {
		if side == types.Long && st.Bar.Close < st.EMA20 {
			return false
		}
		if side == types.Short && st.Bar.Close > st.EMA20 {
			return false
		}
	}
	if c.MomentumTicks > 0 {
		need := p.scaleThreshold(c.MomentumTicks) * st.TickSize
		if math.Abs(st.Momentum) < need {
			return false
		}
	}
	if c.RequireMomentumSign {
		if side == types.Long && st.Momentum <= 0 {
			return false
		}
		if side == types.Short && st.Momentum >= 0 {
			return false
		}
	}
	if c.MaxATRTicks > 0 && st.ATR14 > c.MaxATRTicks*st.TickSize {
		return false
	}
	return true
}

// checkInvalidations applies the veto block. Session bypass skips the
// clock-based vetoes; the tape-quality floor always applies.
func checkInvalidations(r *StrategyRules, p ExecutionProfile, st *MarketState) bool {
	iv := &r.Invalidations
	if iv.MinATRTicks > 0 && st.ATR14 < iv.MinATRTicks*st.TickSize {
		return false
	}
	if !p.SessionBypass {
		if iv.MinutesBeforeClose > 0 && r.Session.MinutesToClose(st.Bar.Time) < iv.MinutesBeforeClose {
			return false
		}
		if iv.MaxBarsSinceOpen > 0 && st.BarsSinceOpen > iv.MaxBarsSinceOpen {
			return false
		}
	}
	return true
}

// InSession is the executor's session filter. Outside the session an open
// position must be closed; a flat bot skips the bar. Bypass profiles are
// always in session.
func InSession(r *StrategyRules, p ExecutionProfile, t time.Time) bool {
	if p.SessionBypass {
		return true
	}
	return r.Session.InSession(t)
}

// InBlackout is the executor's no-trade-window filter. Unlike the session
// filter it only suppresses activity on the bar; it never closes positions.
func InBlackout(r *StrategyRules, p ExecutionProfile, t time.Time) bool {
	if p.SessionBypass {
		return false
	}
	return r.Session.InNoTradeWindow(t)
}
