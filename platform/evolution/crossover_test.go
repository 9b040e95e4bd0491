package evolution

import (
	"testing"

	"github.com/gauntletlabs/gauntlet/platform/prng"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
)

func TestCrossover_FloatsBlendOrPickWithinParents(t *testing.T) {
	space := []ParamSpec{{Name: "vwapDeviationAtr", Type: TypeFloat, Min: 0.5, Max: 3.0, Default: 1.5, Weight: 1.0}}
	a := types.Config{"vwapDeviationAtr": 1.0}
	b := types.Config{"vwapDeviationAtr": 2.0}
	for seed := uint32(1); seed <= 60; seed++ {
		m := NewMutator(prng.New(seed))
		child := m.Crossover(a, b, space)
		v := child["vwapDeviationAtr"].(float64)
		if v < 1.0 || v > 2.0 {
			t.Fatalf("child value %v escaped the parent interval at seed %d", v, seed)
		}
	}
}

func TestCrossover_IntegersNeverAverage(t *testing.T) {
	space := []ParamSpec{{Name: "lookbackBars", Type: TypeInteger, Min: 10, Max: 60, Default: 20.0, Weight: 1.0}}
	a := types.Config{"lookbackBars": 10.0}
	b := types.Config{"lookbackBars": 60.0}
	for seed := uint32(1); seed <= 60; seed++ {
		m := NewMutator(prng.New(seed))
		child := m.Crossover(a, b, space)
		v := child["lookbackBars"].(float64)
		if v != 10.0 && v != 60.0 {
			t.Fatalf("integer crossover produced %v at seed %d, want one parent's value", v, seed)
		}
	}
}

func TestCrossover_AbsentFromBothStaysAbsent(t *testing.T) {
	space := SpaceFor("breakout")
	m := NewMutator(prng.New(3))
	child := m.Crossover(types.Config{}, types.Config{}, space)
	assert.Equal(t, 0, len(child))
}

func TestCrossover_NonSpaceKeysFollowParentA(t *testing.T) {
	space := SpaceFor("breakout")
	a := types.Config{"sessionNote": "rth-only", "lookbackBars": 15.0}
	b := types.Config{"sessionNote": "globex", "lookbackBars": 45.0}
	for seed := uint32(1); seed <= 20; seed++ {
		m := NewMutator(prng.New(seed))
		child := m.Crossover(a, b, space)
		assert.Equal(t, "rth-only", child["sessionNote"])
	}
	// Inputs survive the pass.
	assert.Equal(t, 15.0, a["lookbackBars"])
	assert.Equal(t, 45.0, b["lookbackBars"])
}

func TestCrossover_CanInheritAbsenceFromParentB(t *testing.T) {
	space := []ParamSpec{{Name: "momentumTicks", Type: TypeInteger, Min: 0, Max: 12, Default: 0.0, Weight: 1.0}}
	a := types.Config{"momentumTicks": 6.0}
	b := types.Config{}
	sawAbsent, sawPresent := false, false
	for seed := uint32(1); seed <= 60; seed++ {
		m := NewMutator(prng.New(seed))
		child := m.Crossover(a, b, space)
		if _, ok := child["momentumTicks"]; ok {
			assert.Equal(t, 6.0, child["momentumTicks"])
			sawPresent = true
		} else {
			sawAbsent = true
		}
	}
	if !sawAbsent || !sawPresent {
		t.Fatal("coin flip never took both sides across 60 seeds")
	}
}

func TestCrossover_DeterministicUnderSeed(t *testing.T) {
	space := SpaceFor("mean_reversion")
	a := types.Config{"rsiOversold": 20.0, "rsiOverbought": 80.0, "vwapDeviationAtr": 1.0}
	b := types.Config{"rsiOversold": 35.0, "rsiOverbought": 65.0, "vwapDeviationAtr": 2.5}
	first := NewMutator(prng.New(99)).Crossover(a, b, space)
	second := NewMutator(prng.New(99)).Crossover(a, b, space)
	assert.DeepEqual(t, first, second)
}
