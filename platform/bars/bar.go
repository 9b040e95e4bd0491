// Package bars is the platform's market-data plane: the bar model, the
// compact wire codec, instrument-aware validation, timeframe resampling,
// the provider contract, and the shared redis cache with distributed
// stampede protection.
package bars

import (
	"time"

	"github.com/pkg/errors"
)

// Bar is one OHLCV bar. Times are UTC; prices are raw float64 because bars
// feed indicators, not money math. Trade PnL converts to decimal at the
// entry/exit boundary.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Timeframe is a canonical bar interval.
type Timeframe string

// The canonical timeframe alphabet.
const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", errors.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the wall-clock span of one bar.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// compactBar is the wire form: [ts, o, h, l, c, v] with ts in unix seconds.
// Unix seconds stay far below 2^53, so float64 carries them exactly.
type compactBar [6]float64

func (b Bar) compact() compactBar {
	return compactBar{float64(b.Time.Unix()), b.Open, b.High, b.Low, b.Close, b.Volume}
}

func (c compactBar) bar() Bar {
	return Bar{
		Time:   time.Unix(int64(c[0]), 0).UTC(),
		Open:   c[1],
		High:   c[2],
		Low:    c[3],
		Close:  c[4],
		Volume: c[5],
	}
}
