package bars

import (
	"strings"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

func TestValidate_CleanSetPasses(t *testing.T) {
	require.NoError(t, Validate("MES", sampleBars(100)))
}

func TestValidate_UnknownSymbol(t *testing.T) {
	err := Validate("ZB", sampleBars(1))
	assert.Equal(t, errclass.InstrumentNotSupported, errclass.CodeOf(err))
}

func TestValidate_OHLCInconsistency(t *testing.T) {
	bs := sampleBars(3)
	bs[1].High, bs[1].Low = bs[1].Low, bs[1].High
	err := Validate("MES", bs)
	require.NotNil(t, err)
	assert.Equal(t, errclass.BarValidationFailed, errclass.CodeOf(err))
	assert.ErrorContains(t, "high", err)
}

func TestValidate_TickAlignment(t *testing.T) {
	bs := sampleBars(3)
	bs[2].Close = bs[2].Low + 0.13 // Off the 0.25 grid but inside the range.
	err := Validate("MES", bs)
	require.NotNil(t, err)
	assert.ErrorContains(t, "tick", err)
}

func TestValidate_PriceBounds(t *testing.T) {
	bs := sampleBars(2)
	bs[0].Open, bs[0].High, bs[0].Low, bs[0].Close = 2, 2, 2, 2
	err := Validate("MES", bs)
	require.NotNil(t, err)
	assert.ErrorContains(t, "bounds", err)
}

func TestValidate_TimeMustAdvance(t *testing.T) {
	bs := sampleBars(3)
	bs[2].Time = bs[1].Time
	err := Validate("MES", bs)
	require.NotNil(t, err)
	assert.ErrorContains(t, "advance", err)
}

func TestValidate_AggregatesAtMostThreeErrors(t *testing.T) {
	bs := sampleBars(10)
	for i := range bs {
		bs[i].High, bs[i].Low = bs[i].Low, bs[i].High
	}
	err := Validate("MES", bs)
	require.NotNil(t, err)
	assert.Equal(t, true, strings.Contains(err.Error(), "3 validation error"), "got %v", err)
}

func TestResample_LeftLabeled(t *testing.T) {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	minute := make([]Bar, 10)
	for i := range minute {
		p := 100 + float64(i)
		minute[i] = Bar{
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: p, High: p + 2, Low: p - 1, Close: p + 1, Volume: 10,
		}
	}
	got, err := Resample(minute, TF5m)
	require.NoError(t, err)
	require.Equal(t, 2, len(got))

	first := got[0]
	assert.Equal(t, true, first.Time.Equal(start), "left label: %v", first.Time)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 106.0, first.High, "max high of bars 0..4")
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 105.0, first.Close, "close of bar 4")
	assert.Equal(t, 50.0, first.Volume)

	second := got[1]
	assert.Equal(t, true, second.Time.Equal(start.Add(5*time.Minute)))
	assert.Equal(t, 105.0, second.Open)
	assert.Equal(t, 110.0, second.Close)
}

func TestResample_PassThrough1m(t *testing.T) {
	minute := sampleBars(7)
	got, err := Resample(minute, TF1m)
	require.NoError(t, err)
	assert.Equal(t, 7, len(got))
}
