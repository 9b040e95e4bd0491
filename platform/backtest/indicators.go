package backtest

import (
	"math"

	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
)

// Indicator periods. These are part of the rule semantics, not tunables:
// every archetype's thresholds were calibrated against them.
const (
	emaFast      = 9
	emaSlow      = 20
	emaSlower    = 21
	smaPeriod    = 50
	rsiPeriod    = 14
	atrPeriod    = 14
	momentumBars = 10
	volumePeriod = 20
)

// ema is the multiplicative exponential moving average, seeded with the
// first observed close.
type ema struct {
	k      float64
	value  float64
	seeded bool
}

func newEMA(period int) *ema {
	return &ema{k: 2.0 / (float64(period) + 1)}
}

func (e *ema) update(close float64) {
	if !e.seeded {
		e.value = close
		e.seeded = true
		return
	}
	e.value += (close - e.value) * e.k
}

// window is a fixed-size ring with a running sum, used for the SMA, the ATR
// true-range mean, and the volume average.
type window struct {
	vals  []float64
	idx   int
	count int
	sum   float64
}

func newWindow(n int) *window {
	return &window{vals: make([]float64, n)}
}

func (w *window) push(v float64) {
	if w.count < len(w.vals) {
		w.vals[w.idx] = v
		w.sum += v
		w.count++
	} else {
		w.sum += v - w.vals[w.idx]
		w.vals[w.idx] = v
	}
	w.idx = (w.idx + 1) % len(w.vals)
}

func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// rsi implements Wilder's smoothing: a simple average over the first period
// of deltas, then avg = (avg*(n-1) + current)/n. It reads 50 until warm.
type rsi struct {
	period           int
	prevClose        float64
	havePrev         bool
	warm             int
	sumGain, sumLoss float64
	avgGain, avgLoss float64
}

func newRSI(period int) *rsi {
	return &rsi{period: period}
}

func (r *rsi) update(close float64) {
	if !r.havePrev {
		r.prevClose = close
		r.havePrev = true
		return
	}
	delta := close - r.prevClose
	r.prevClose = close
	var gain, loss float64
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	if r.warm < r.period {
		r.sumGain += gain
		r.sumLoss += loss
		if r.warm++; r.warm == r.period {
			r.avgGain = r.sumGain / float64(r.period)
			r.avgLoss = r.sumLoss / float64(r.period)
		}
		return
	}
	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

func (r *rsi) value() float64 {
	if r.warm < r.period {
		return 50
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// atr is the rolling mean of the true range over the last period bars.
type atr struct {
	trs       *window
	prevClose float64
	havePrev  bool
}

func newATR(period int) *atr {
	return &atr{trs: newWindow(period)}
}

func (a *atr) update(b bars.Bar) {
	tr := b.High - b.Low
	if a.havePrev {
		tr = math.Max(tr, math.Max(math.Abs(b.High-a.prevClose), math.Abs(b.Low-a.prevClose)))
	}
	a.prevClose = b.Close
	a.havePrev = true
	a.trs.push(tr)
}

func (a *atr) value() float64 {
	return a.trs.mean()
}

// sessionVWAP accumulates typical price volume within one exchange day.
type sessionVWAP struct {
	pv, vol float64
}

func (v *sessionVWAP) reset() {
	v.pv, v.vol = 0, 0
}

func (v *sessionVWAP) update(b bars.Bar) {
	typical := (b.High + b.Low + b.Close) / 3
	v.pv += typical * b.Volume
	v.vol += b.Volume
}

// value falls back to the given price while the day has no volume yet.
func (v *sessionVWAP) value(fallback float64) float64 {
	if v.vol == 0 {
		return fallback
	}
	return v.pv / v.vol
}

// momentumWindow tracks close-minus-close-N-bars-back. It holds N+1 closes;
// once full, the slot about to be overwritten is the oldest.
type momentumWindow struct {
	closes []float64
	idx    int
	count  int
}

func newMomentumWindow(lookback int) *momentumWindow {
	return &momentumWindow{closes: make([]float64, lookback+1)}
}

func (m *momentumWindow) push(close float64) {
	m.closes[m.idx] = close
	if m.count < len(m.closes) {
		m.count++
	}
	m.idx = (m.idx + 1) % len(m.closes)
}

func (m *momentumWindow) value() float64 {
	if m.count < len(m.closes) {
		return 0
	}
	n := len(m.closes)
	newest := m.closes[(m.idx-1+n)%n]
	oldest := m.closes[m.idx]
	return newest - oldest
}

// rangeWindow tracks the high/low extremes of the last N bars. Bounds are
// zero until the window fills, which the entry predicates treat as not
// ready.
type rangeWindow struct {
	highs, lows []float64
	idx         int
	count       int
}

func newRangeWindow(lookback int) *rangeWindow {
	if lookback < 1 {
		lookback = 1
	}
	return &rangeWindow{highs: make([]float64, lookback), lows: make([]float64, lookback)}
}

func (r *rangeWindow) push(high, low float64) {
	r.highs[r.idx] = high
	r.lows[r.idx] = low
	if r.count < len(r.highs) {
		r.count++
	}
	r.idx = (r.idx + 1) % len(r.highs)
}

func (r *rangeWindow) bounds() (hi, lo float64) {
	if r.count < len(r.highs) {
		return 0, 0
	}
	hi, lo = r.highs[0], r.lows[0]
	for i := 1; i < r.count; i++ {
		if r.highs[i] > hi {
			hi = r.highs[i]
		}
		if r.lows[i] < lo {
			lo = r.lows[i]
		}
	}
	return hi, lo
}

// indicatorSet owns every indicator state machine for one run. observe folds
// a bar in and returns the market snapshot the rule evaluators read.
//
// Two windows deliberately lag one bar behind: the lookback range and the
// volume average are snapshotted before the current bar is pushed, so a
// breakout is judged against the range it is breaking out OF and a volume
// spike against the average it is spiking ABOVE.
type indicatorSet struct {
	tick float64

	ema9, ema20, ema21 *ema
	sma50              *window
	rsi14              *rsi
	atr14              *atr
	vwap               sessionVWAP
	momentum           *momentumWindow
	rangeHL            *rangeWindow
	volumes            *window

	prevClose float64

	day           string
	dailyOpen     float64
	dailyHigh     float64
	dailyLow      float64
	prevDailyOpen float64
	barsSinceOpen int
}

func newIndicatorSet(tick float64, lookbackBars int) *indicatorSet {
	return &indicatorSet{
		tick:     tick,
		ema9:     newEMA(emaFast),
		ema20:    newEMA(emaSlow),
		ema21:    newEMA(emaSlower),
		sma50:    newWindow(smaPeriod),
		rsi14:    newRSI(rsiPeriod),
		atr14:    newATR(atrPeriod),
		momentum: newMomentumWindow(momentumBars),
		rangeHL:  newRangeWindow(lookbackBars),
		volumes:  newWindow(volumePeriod),
	}
}

// observe folds one bar into the set and returns the snapshot for that bar.
// Day membership is judged on the bar's exchange-time calendar date; a new
// day resets VWAP and the daily open/high/low.
func (s *indicatorSet) observe(b bars.Bar) *strategy.MarketState {
	day := b.Time.In(strategy.ExchangeTZ()).Format("2006-01-02")
	if day != s.day {
		if s.day != "" {
			s.prevDailyOpen = s.dailyOpen
		}
		s.day = day
		s.dailyOpen, s.dailyHigh, s.dailyLow = b.Open, b.High, b.Low
		s.vwap.reset()
		s.barsSinceOpen = 0
	} else {
		s.dailyHigh = math.Max(s.dailyHigh, b.High)
		s.dailyLow = math.Min(s.dailyLow, b.Low)
		s.barsSinceOpen++
	}

	// Snapshot the lagging windows before the bar joins them.
	rangeHigh, rangeLow := s.rangeHL.bounds()
	avgVolume := s.volumes.mean()
	prevClose := s.prevClose

	s.ema9.update(b.Close)
	s.ema20.update(b.Close)
	s.ema21.update(b.Close)
	s.sma50.push(b.Close)
	s.rsi14.update(b.Close)
	s.atr14.update(b)
	s.vwap.update(b)
	s.momentum.push(b.Close)

	st := &strategy.MarketState{
		Bar:           b,
		PrevClose:     prevClose,
		TickSize:      s.tick,
		EMA9:          s.ema9.value,
		EMA20:         s.ema20.value,
		EMA21:         s.ema21.value,
		SMA50:         s.sma50.mean(),
		VWAP:          s.vwap.value(b.Close),
		RSI14:         s.rsi14.value(),
		ATR14:         s.atr14.value(),
		Momentum:      s.momentum.value(),
		DailyOpen:     s.dailyOpen,
		DailyHigh:     s.dailyHigh,
		DailyLow:      s.dailyLow,
		PrevDailyOpen: s.prevDailyOpen,
		RangeHigh:     rangeHigh,
		RangeLow:      rangeLow,
		AvgVolume:     avgVolume,
		BarsSinceOpen: s.barsSinceOpen,
	}

	s.rangeHL.push(b.High, b.Low)
	s.volumes.push(b.Volume)
	s.prevClose = b.Close
	return st
}
