package evolution

import (
	"strings"
	"testing"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/shopspring/decimal"
)

func fptr(v float64) *float64 {
	return &v
}

func metricsWith(trades int, sharpe, profitFactor, winRate, maxDD, expectancy float64) *types.BaselineMetrics {
	exp := decimal.NewFromFloat(expectancy)
	return &types.BaselineMetrics{
		TotalTrades:    trades,
		Sharpe:         fptr(sharpe),
		ProfitFactor:   fptr(profitFactor),
		WinRate:        fptr(winRate),
		MaxDrawdownPct: fptr(maxDD),
		Expectancy:     &exp,
	}
}

func TestFitness_SaturatesAtOne(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	// Every component at or past its saturation point.
	assert.Equal(t, 1.0, Fitness(metricsWith(100, 3.0, 3.0, 60, 0, 50)))
	// Overshooting saturation does not score past 1.
	assert.Equal(t, 1.0, Fitness(metricsWith(100, 5.0, 8.0, 90, 0, 200)))
}

func TestFitness_MidScaleComposite(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	// Each component sits at half scale, so the weighted sum lands at
	// 0.5 plus the win-rate component's extra quarter (45/60 = 0.75).
	approxEqual(t, 0.5375, Fitness(metricsWith(80, 1.5, 2.0, 45, 10, 25)), 1e-9)
}

func TestFitness_NoEvidenceScoresZero(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	assert.Equal(t, 0.0, Fitness(nil))
	assert.Equal(t, 0.0, Fitness(&types.BaselineMetrics{TotalTrades: 0}))
}

func TestFitness_LosingBotScoresNearZero(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	// Negative sharpe, sub-break-even profit factor and negative expectancy
	// all clamp to zero; only win rate and drawdown keep it off the floor.
	score := Fitness(metricsWith(50, -1.0, 0.5, 20, 25, -10))
	approxEqual(t, 0.05, score, 1e-9)
}

func TestDecide_SkipsThinEvidence(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()

	d := Decide(metricsWith(10, 2.0, 2.0, 50, 5, 25))
	assert.Equal(t, PrioritySkip, d.Priority)
	require.Equal(t, 1, len(d.Reasons))
	if !strings.Contains(d.Reasons[0], "below the 20") {
		t.Fatalf("unexpected skip reason %q", d.Reasons[0])
	}

	d = Decide(nil)
	assert.Equal(t, PrioritySkip, d.Priority)
}

func TestDecide_LadderPriorities(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	tests := []struct {
		name    string
		metrics *types.BaselineMetrics
		want    Priority
		reason  string
	}{
		{
			name:    "negative sharpe is high",
			metrics: metricsWith(40, -0.5, 1.5, 45, 8, 10),
			want:    PriorityHigh,
			reason:  "sharpe -0.50 is negative",
		},
		{
			name:    "deep drawdown is high",
			metrics: metricsWith(40, 1.5, 2.0, 45, 20, 25),
			want:    PriorityHigh,
			reason:  "max drawdown 20.0% exceeds 15%",
		},
		{
			name:    "sub-break-even profit factor is high",
			metrics: metricsWith(40, 0.8, 0.8, 45, 8, 10),
			want:    PriorityHigh,
			reason:  "profit factor 0.80 is below break-even",
		},
		{
			name:    "weak win rate is medium",
			metrics: metricsWith(40, 1.2, 1.8, 30, 8, 15),
			want:    PriorityMedium,
			reason:  "win rate 30.0% is below 35%",
		},
		{
			name:    "thin sharpe is medium",
			metrics: metricsWith(40, 0.4, 2.0, 50, 5, 30),
			want:    PriorityMedium,
			reason:  "sharpe 0.40 is below 0.5",
		},
		{
			name:    "weak composite alone is low",
			metrics: metricsWith(40, 0.6, 1.2, 40, 12, 5),
			want:    PriorityLow,
			reason:  "is below 0.40",
		},
		{
			name:    "healthy bot needs nothing",
			metrics: metricsWith(40, 1.8, 2.2, 52, 6, 30),
			want:    PriorityNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.metrics)
			assert.Equal(t, tt.want, d.Priority)
			if tt.reason == "" {
				assert.Equal(t, 0, len(d.Reasons))
				return
			}
			found := false
			for _, r := range d.Reasons {
				if strings.Contains(r, tt.reason) {
					found = true
				}
			}
			if !found {
				t.Fatalf("reasons %v missing %q", d.Reasons, tt.reason)
			}
		})
	}
}

func TestDecide_CollectsEveryTrippedReason(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	// Everything wrong at once: the priority is the worst rule's, but the
	// reasons list keeps the full picture.
	d := Decide(metricsWith(40, -1.0, 0.5, 20, 25, -10))
	assert.Equal(t, PriorityHigh, d.Priority)
	assert.Equal(t, 5, len(d.Reasons))
	approxEqual(t, 0.05, d.Fitness, 1e-9)
}
