package regime

import (
	"math"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
)

func dailyWindow(closes []float64, volume float64) []bars.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]bars.Bar, len(closes))
	for i, c := range closes {
		out[i] = bars.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: volume,
		}
	}
	return out
}

// trendingCloses compounds a fixed daily return from 100.
func trendingCloses(n int, daily float64) []float64 {
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= 1 + daily
	}
	return closes
}

// alternatingCloses flips between base and base+step each day.
func alternatingCloses(n int, base, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base
		if i%2 == 1 {
			closes[i] = base + step
		}
	}
	return closes
}

func approxEqual(tb testing.TB, expected, actual, tol float64) {
	tb.Helper()
	if math.Abs(expected-actual) > tol {
		tb.Fatalf("expected %v within %v, got %v", expected, tol, actual)
	}
}

func TestComputeFeatures(t *testing.T) {
	f := ComputeFeatures(dailyWindow([]float64{100, 102, 101}, 500))
	assert.Equal(t, 3, f.Bars)
	// Returns +2% then -0.980%: symmetric deviations around the mean, so
	// the stddev equals the deviation itself.
	approxEqual(t, 0.0050980, f.AvgReturn, 1e-6)
	approxEqual(t, 0.0149020, f.Volatility, 1e-6)

	f = ComputeFeatures(dailyWindow([]float64{100}, 500))
	assert.Equal(t, 1, f.Bars)
	assert.Equal(t, 0.0, f.Volatility)
}

func TestComputeFeatures_VolumeRatio(t *testing.T) {
	window := dailyWindow(trendingCloses(30, 0), 1000)
	for i := 25; i < 30; i++ {
		window[i].Volume = 2000
	}
	f := ComputeFeatures(window)
	// Recent five average 2000 against a window average of 35000/30.
	approxEqual(t, 1.7142857, f.VolumeRatio, 1e-6)
}

func TestComputeFeatures_PriceRange(t *testing.T) {
	window := dailyWindow(trendingCloses(30, 0), 1000)
	window[3].Low = 95
	window[20].High = 110
	f := ComputeFeatures(window)
	approxEqual(t, 15.0/95.0, f.PriceRangePct, 1e-9)
}

func TestClassifyMarket(t *testing.T) {
	tests := []struct {
		name   string
		window []bars.Bar
		want   MarketRegime
	}{
		{
			name:   "steady climb is bull even at zero volatility",
			window: dailyWindow(trendingCloses(30, 0.004), 1000),
			want:   MarketBull,
		},
		{
			name:   "steady slide is bear",
			window: dailyWindow(trendingCloses(30, -0.004), 1000),
			want:   MarketBear,
		},
		{
			name:   "three percent whipsaw is high volatility",
			window: dailyWindow(alternatingCloses(30, 100, 3), 1000),
			want:   MarketHighVol,
		},
		{
			name:   "directionless micro moves are low volatility",
			window: dailyWindow(alternatingCloses(30, 100, 0.2), 1000),
			want:   MarketLowVol,
		},
		{
			name:   "one percent chop is sideways",
			window: dailyWindow(alternatingCloses(30, 100, 1), 1000),
			want:   MarketSideways,
		},
		{
			name:   "short window is unknown",
			window: dailyWindow(trendingCloses(10, 0.004), 1000),
			want:   MarketUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMarket(ComputeFeatures(tt.window)))
		})
	}
}

func TestUnify(t *testing.T) {
	tests := []struct {
		name   string
		market MarketRegime
		macro  MacroRegime
		trend  float64
		want   UnifiedRegime
	}{
		{"high vol dominates macro", MarketHighVol, MacroExpansion, 0, HighVolCrisis},
		{"low vol dominates macro", MarketLowVol, MacroRecession, 0, LowVolCompression},
		{"bull without macro defaults to expansion", MarketBull, MacroUnknown, 0.8, BullExpansion},
		{"bull against contraction", MarketBull, MacroContraction, 0.8, BullContraction},
		{"bull against recession", MarketBull, MacroRecession, 0.8, BullContraction},
		{"bear in expansion", MarketBear, MacroExpansion, -0.8, BearExpansion},
		{"bear in recession", MarketBear, MacroRecession, -0.8, BearRecession},
		{"flat sideways is stable", MarketSideways, MacroUnknown, 0.05, SidewaysStable},
		{"sideways with upward pull is transition", MarketSideways, MacroUnknown, 0.2, Transition},
		{"sideways with downward pull is transition", MarketSideways, MacroUnknown, -0.2, Transition},
		{"unknown market stays unknown", MarketUnknown, MacroExpansion, 0, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unify(tt.market, tt.macro, Features{TrendStrength: tt.trend})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuidanceMatrix_CoversEveryRegimeAndNamesRealArchetypes(t *testing.T) {
	all := []UnifiedRegime{
		BullExpansion, BullContraction, BearExpansion, BearRecession,
		SidewaysStable, HighVolCrisis, LowVolCompression, Transition, Unknown,
	}
	for _, u := range all {
		g, ok := guidanceMatrix[u]
		if !ok {
			t.Fatalf("no guidance row for %s", u)
		}
		if g.PositionMultiplier <= 0 {
			t.Fatalf("%s has non-positive position multiplier", u)
		}
		for _, id := range append(append(append([]string{}, g.OptimalArchetypes...), g.AcceptableArchetypes...), g.AvoidArchetypes...) {
			if !strategy.IsKnown(id) {
				t.Fatalf("%s guidance names unknown archetype %q", u, id)
			}
		}
	}
}

func TestGuidanceFor_FallsBackToUnknown(t *testing.T) {
	g := GuidanceFor(UnifiedRegime("NOT_A_REGIME"))
	assert.Equal(t, 0.5, g.PositionMultiplier)
	assert.Equal(t, 0, len(g.OptimalArchetypes))

	crisis := GuidanceFor(HighVolCrisis)
	assert.Equal(t, 0.3, crisis.PositionMultiplier)
	assert.Equal(t, 1.5, crisis.StopLossMultiplier)
}
