package strategy

import (
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

// etTime builds an exchange-time instant on a regular Tuesday.
func etTime(h, m int) time.Time {
	return time.Date(2024, 1, 2, h, m, 0, 0, exchangeTZ)
}

func mustRules(t *testing.T, archetype string) *StrategyRules {
	t.Helper()
	arch, ok := ByID(archetype)
	require.Equal(t, true, ok)
	r, err := Build(arch, testBot(archetype))
	require.NoError(t, err)
	return r
}

// neutralState is a mid-session MES snapshot that fires nothing on its own.
func neutralState() *MarketState {
	return &MarketState{
		Bar:           bars.Bar{Time: etTime(10, 30), Open: 5000, High: 5002, Low: 4998, Close: 5000, Volume: 1000},
		PrevClose:     5000,
		TickSize:      0.25,
		EMA9:          5000,
		EMA20:         5000,
		EMA21:         5000,
		SMA50:         5000,
		VWAP:          5000,
		RSI14:         50,
		ATR14:         5,
		Momentum:      0,
		DailyOpen:     5000,
		DailyHigh:     5005,
		DailyLow:      4995,
		PrevDailyOpen: 5000,
		RangeHigh:     5005,
		RangeLow:      4995,
		AvgVolume:     1000,
		BarsSinceOpen: 12,
	}
}

func TestEvaluateEntry_NeutralTapeFiresNothing(t *testing.T) {
	for _, id := range Catalog() {
		r := mustRules(t, id)
		_, ok := EvaluateEntry(r, ProductionProfile(), neutralState())
		assert.Equal(t, false, ok, "archetype %s fired on a flat tape", id)
	}
}

func TestBreakout(t *testing.T) {
	r := mustRules(t, "breakout")
	st := neutralState()
	// Threshold is 4 ticks = 1.0; the close must clear 5006.0.
	st.Bar.Close = 5006.25
	st.Bar.High = 5007
	st.Bar.Volume = 1500
	st.Momentum = 3

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)
	assert.Equal(t, "BREAKOUT", sig.Reason)

	// Downside break mirrors.
	st = neutralState()
	st.Bar.Close = 4993.75
	st.Bar.Low = 4993
	st.Bar.Volume = 1500
	st.Momentum = -3
	sig, ok = EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Short, sig.Side)
}

func TestBreakout_VolumeConfirmation(t *testing.T) {
	r := mustRules(t, "breakout")
	st := neutralState()
	st.Bar.Close = 5006.25
	st.Momentum = 3
	st.Bar.Volume = 1100 // Below the 1.2x multiple.

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok, "thin volume must reject the signal")

	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, true, ok, "trials profile skips the volume confirmation")
}

func TestBreakout_LowerThresholds(t *testing.T) {
	r := mustRules(t, "breakout")
	st := neutralState()
	st.Bar.Close = 5005.75 // 3 ticks beyond the range high.
	st.Bar.Volume = 1500
	st.Momentum = 3

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)

	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, true, ok, "halved threshold accepts a 3-tick break")
}

func TestMeanReversion(t *testing.T) {
	r := mustRules(t, "mean_reversion")
	st := neutralState()
	st.RSI14 = 25
	st.Bar.Close = 4992 // 1.6 ATR under VWAP.

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)

	st.RSI14 = 76
	st.Bar.Close = 5008
	sig, ok = EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Short, sig.Side)
}

func TestMeanReversion_WiderBands(t *testing.T) {
	r := mustRules(t, "mean_reversion")
	st := neutralState()
	st.RSI14 = 35 // Inside the production band, inside the widened one.
	st.Bar.Close = 4992

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)

	sig, ok := EvaluateEntry(r, TrialsProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)
}

func TestVWAPTouch_Reclaim(t *testing.T) {
	r := mustRules(t, "vwap_touch")
	st := neutralState()
	st.PrevClose = 4999 // Below VWAP last bar.
	st.Bar.Close = 5000.5

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)

	// Same touch without the cross is production-rejected, trials-accepted.
	st.PrevClose = 5001
	_, ok = EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)
	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, true, ok)

	// Outside the band nothing fires under any profile.
	st.Bar.Close = 5010
	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, false, ok)
}

func TestTrendContinuation_MomentumAgreement(t *testing.T) {
	r := mustRules(t, "trend_continuation")
	st := neutralState()
	st.EMA9 = 5002
	st.EMA20 = 5000
	st.Bar.Close = 5003
	st.Momentum = 2

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)

	st.Momentum = -1
	_, ok = EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok, "production requires momentum sign agreement")
	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, true, ok, "relaxed entry waives momentum agreement")
}

func TestGapFade(t *testing.T) {
	r := mustRules(t, "gap_fade")
	st := neutralState()
	st.DailyOpen = 5010
	st.PrevDailyOpen = 5000 // 2.0 ATR gap up.

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Short, sig.Side, "fade trades against the gap")

	st.DailyOpen = 4990
	sig, ok = EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)
}

func TestGapFade_OnlyEarlyInDay(t *testing.T) {
	r := mustRules(t, "gap_fade")
	st := neutralState()
	st.DailyOpen = 5010
	st.PrevDailyOpen = 5000
	st.BarsSinceOpen = 30 // Past the 24-bar entry window.

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)
}

func TestGapFill_WaitsForRetrace(t *testing.T) {
	r := mustRules(t, "gap_fill")
	st := neutralState()
	st.DailyOpen = 5010
	st.PrevDailyOpen = 5000
	st.Bar.Close = 5011 // Still extending the gap.

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)

	st.Bar.Close = 5008 // Retrace started.
	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Short, sig.Side)
}

func TestReversal_CandleDirection(t *testing.T) {
	r := mustRules(t, "reversal")
	st := neutralState()
	st.Bar.Low = 4994 // Fresh lookback low.
	st.Bar.Open = 4995
	st.Bar.Close = 4997 // Bar turned up.
	st.RSI14 = 22
	st.Bar.Volume = 1400

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)

	st.Bar.Close = 4994.5 // Bar still falling.
	_, ok = EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok, "production requires the reversal candle")
	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, true, ok)
}

func TestRangeScalp(t *testing.T) {
	r := mustRules(t, "range_scalp")
	st := neutralState()
	st.ATR14 = 2
	st.RangeHigh = 5003
	st.RangeLow = 4998 // 5-point range within the 3-ATR bound.

	st.Bar.Close = 4999 // Lower quarter of the range.
	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)

	st.Bar.Close = 5002.5 // Upper quarter.
	sig, ok = EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Short, sig.Side)

	st.Bar.Close = 5000.5 // Middle of the range.
	_, ok = EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)

	st.ATR14 = 1 // Range now 5 ATR wide: too loose to scalp.
	st.Bar.Close = 4999
	_, ok = EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)
}

func TestMomentumSurge(t *testing.T) {
	r := mustRules(t, "momentum_surge")
	st := neutralState()
	st.EMA9 = 5004
	st.EMA20 = 5002
	st.EMA21 = 5001
	st.Bar.Close = 5005
	st.Momentum = 2.5 // 10 ticks, above the 8-tick default.
	st.Bar.Volume = 1600

	sig, ok := EvaluateEntry(r, ProductionProfile(), st)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Long, sig.Side)

	st.Momentum = 1.5 // 6 ticks: below production, above the halved trials bar.
	_, ok = EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)
	_, ok = EvaluateEntry(r, TrialsProfile(), st)
	assert.Equal(t, true, ok)
}

func TestInvalidation_LateEntry(t *testing.T) {
	r := mustRules(t, "breakout")
	st := neutralState()
	st.Bar.Close = 5006.25
	st.Bar.Volume = 1500
	st.Momentum = 3
	st.Bar.Time = etTime(16, 5) // Ten minutes to the bell, limit is fifteen.

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)
}

func TestInvalidation_DeadTape(t *testing.T) {
	r := mustRules(t, "breakout")
	st := neutralState()
	st.Bar.Close = 5006.25
	st.Bar.Volume = 1500
	st.Momentum = 3
	st.ATR14 = 0.25 // One tick of range: below the two-tick floor.

	_, ok := EvaluateEntry(r, ProductionProfile(), st)
	assert.Equal(t, false, ok)
}
