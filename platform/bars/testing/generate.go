// Package testing provides deterministic bar fixtures for executor and
// cache tests. Fixtures are plain loops, not the simulated provider, so a
// test failure in the provider cannot cascade into every other package.
package testing

import (
	"math"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/bars"
)

// Series describes a deterministic fixture.
type Series struct {
	Start     time.Time
	Timeframe bars.Timeframe
	Count     int
	Base      float64 // Starting price.
	Tick      float64 // Grid to round onto.
	Drift     float64 // Per-bar price drift before rounding.
	Wave      float64 // Amplitude of a slow sine overlay.
	Volume    float64
}

// Generate renders the series. The same Series always produces identical
// bars.
func Generate(s Series) []bars.Bar {
	if s.Tick == 0 {
		s.Tick = 0.25
	}
	if s.Volume == 0 {
		s.Volume = 1000
	}
	step := s.Timeframe.Duration()
	out := make([]bars.Bar, 0, s.Count)
	price := s.Base
	for i := 0; i < s.Count; i++ {
		wave := s.Wave * math.Sin(float64(i)/9)
		open := snap(price, s.Tick)
		close := snap(price+s.Drift+wave, s.Tick)
		high := snap(math.Max(open, close)+s.Tick*2, s.Tick)
		low := snap(math.Min(open, close)-s.Tick*2, s.Tick)
		out = append(out, bars.Bar{
			Time:   s.Start.Add(time.Duration(i) * step).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: s.Volume + float64(i%7)*100,
		})
		price = close
	}
	return out
}

// RTHSeries generates count bars starting inside regular trading hours on
// a weekday, so session filters let them through.
func RTHSeries(symbol string, tf bars.Timeframe, count int) []bars.Bar {
	base := map[string]float64{
		"ES": 4770, "MES": 4770, "NQ": 16800, "MNQ": 16800,
		"YM": 37600, "MYM": 37600, "RTY": 2010, "M2K": 2010,
		"CL": 72, "GC": 2050,
	}[symbol]
	if base == 0 {
		base = 1000
	}
	tick := 0.25
	switch symbol {
	case "YM", "MYM":
		tick = 1
	case "RTY", "M2K", "GC":
		tick = 0.1
	case "CL":
		tick = 0.01
	}
	// 2024-01-02 is a Tuesday; 14:35 UTC is 09:35 ET.
	start := time.Date(2024, 1, 2, 14, 35, 0, 0, time.UTC)
	return Generate(Series{
		Start:     start,
		Timeframe: tf,
		Count:     count,
		Base:      base,
		Tick:      tick,
		Drift:     tick / 2,
		Wave:      base * 0.001,
	})
}

func snap(price, tick float64) float64 {
	return math.Round(price/tick) * tick
}
