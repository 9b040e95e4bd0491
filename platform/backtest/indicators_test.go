package backtest

import (
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
)

func TestEMA_SeedAndSmoothing(t *testing.T) {
	e := newEMA(9) // k = 0.2.
	e.update(10)
	assert.Equal(t, 10.0, e.value, "first close seeds the average")
	e.update(20)
	assert.Equal(t, 12.0, e.value)
}

func TestWindow_RollingMean(t *testing.T) {
	w := newWindow(3)
	assert.Equal(t, 0.0, w.mean())
	w.push(1)
	w.push(2)
	w.push(3)
	assert.Equal(t, 2.0, w.mean())
	w.push(7) // Evicts the 1.
	assert.Equal(t, 4.0, w.mean())
}

func TestRSI_WilderWarmupAndExtremes(t *testing.T) {
	r := newRSI(14)
	close := 100.0
	r.update(close)
	for i := 0; i < 13; i++ {
		close++
		r.update(close)
	}
	assert.Equal(t, 50.0, r.value(), "neutral until the smoothing warms")
	close++
	r.update(close) // Fourteenth delta completes the warmup.
	assert.Equal(t, 100.0, r.value(), "no losses pegs the index")
}

func TestATR_TrueRangeUsesPriorClose(t *testing.T) {
	a := newATR(14)
	a.update(bars.Bar{Open: 9, High: 10, Low: 8, Close: 9})
	assert.Equal(t, 2.0, a.value())
	// The gap above the prior close stretches the true range to 6.
	a.update(bars.Bar{Open: 14, High: 15, Low: 13, Close: 14})
	assert.Equal(t, 4.0, a.value())
}

func TestSessionVWAP_ResetAndFallback(t *testing.T) {
	var v sessionVWAP
	assert.Equal(t, 99.0, v.value(99), "no volume falls back to the given price")
	v.update(bars.Bar{High: 12, Low: 8, Close: 10, Volume: 100})
	assert.Equal(t, 10.0, v.value(0))
	v.update(bars.Bar{High: 22, Low: 18, Close: 20, Volume: 300})
	assert.Equal(t, 17.5, v.value(0))
	v.reset()
	assert.Equal(t, 99.0, v.value(99))
}

func TestMomentumWindow(t *testing.T) {
	m := newMomentumWindow(10)
	for c := 1.0; c <= 10; c++ {
		m.push(c)
	}
	assert.Equal(t, 0.0, m.value(), "not ready until lookback+1 closes arrive")
	m.push(11)
	assert.Equal(t, 10.0, m.value())
	m.push(12)
	assert.Equal(t, 10.0, m.value(), "12 against the 2 sitting ten bars back")
}

func TestRangeWindow_LaggingBounds(t *testing.T) {
	r := newRangeWindow(3)
	r.push(10, 9)
	r.push(11, 8)
	hi, lo := r.bounds()
	assert.Equal(t, 0.0, hi, "bounds stay zero until the window fills")
	assert.Equal(t, 0.0, lo)

	r.push(12, 7)
	hi, lo = r.bounds()
	assert.Equal(t, 12.0, hi)
	assert.Equal(t, 7.0, lo)

	r.push(13, 7.5) // Evicts (10, 9).
	hi, lo = r.bounds()
	assert.Equal(t, 13.0, hi)
	assert.Equal(t, 7.0, lo)
}

func TestIndicatorSet_DayBoundary(t *testing.T) {
	ind := newIndicatorSet(0.25, 1)

	d1 := time.Date(2024, 1, 2, 14, 35, 0, 0, time.UTC) // 09:35 exchange time.
	st := ind.observe(bars.Bar{Time: d1, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 500})
	assert.Equal(t, 100.0, st.DailyOpen)
	assert.Equal(t, 0.0, st.PrevDailyOpen)
	assert.Equal(t, 0, st.BarsSinceOpen)
	assert.Equal(t, 0.0, st.RangeHigh, "the range window lags the current bar")

	st = ind.observe(bars.Bar{Time: d1.Add(5 * time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 500})
	assert.Equal(t, 1, st.BarsSinceOpen)
	assert.Equal(t, 101.0, st.RangeHigh)
	assert.Equal(t, 99.0, st.RangeLow)
	assert.Equal(t, 100.5, st.PrevClose)
	assert.Equal(t, 102.0, st.DailyHigh)

	d2 := time.Date(2024, 1, 3, 14, 35, 0, 0, time.UTC)
	st = ind.observe(bars.Bar{Time: d2, Open: 110, High: 111, Low: 109, Close: 110, Volume: 500})
	assert.Equal(t, 110.0, st.DailyOpen)
	assert.Equal(t, 100.0, st.PrevDailyOpen, "yesterday's open survives the reset")
	assert.Equal(t, 0, st.BarsSinceOpen)
	assert.Equal(t, 110.0, st.DailyHigh)
	assert.Equal(t, 109.0, st.DailyLow)
}
