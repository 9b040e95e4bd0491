// Package evolution breeds bot strategy configs across generations. Each
// archetype exposes a fixed parameter space; the mutator perturbs values
// inside it under one of five mutation modes, crossover blends two parents,
// and the engine decides from live metrics whether a bot has earned a new
// generation at all. Every random draw comes from a seeded source, so the
// same bot at the same generation number always breeds the same offspring.
package evolution

import (
	"sort"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "evolution")

// ParamType is the value domain of one mutable parameter.
type ParamType string

// Parameter types.
const (
	TypeInteger ParamType = "integer"
	TypeFloat   ParamType = "float"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
)

// ParamSpec describes one mutable strategy parameter: its domain, its
// default, and how strongly mutation favors it. Weight scales the
// per-parameter mutation probability; 1.0 is baseline.
type ParamSpec struct {
	Name    string
	Type    ParamType
	Min     float64  // Inclusive. Numeric types only.
	Max     float64  // Inclusive. Numeric types only.
	Values  []string // Enum alternatives.
	Default interface{}
	Weight  float64
}

// baseSpace mutates on every archetype: exit management, the shared volume
// confirmation, and the session-edge invalidations. Risk config keys are
// deliberately absent; stops and sizing belong to the risk engine, not to
// evolution.
var baseSpace = []ParamSpec{
	{Name: "takeProfitTicks", Type: TypeInteger, Min: 10, Max: 200, Default: 40.0, Weight: 1.0},
	{Name: "timeStopBars", Type: TypeInteger, Min: 6, Max: 96, Default: 36.0, Weight: 0.6},
	{Name: "volumeMultiple", Type: TypeFloat, Min: 1.0, Max: 2.5, Default: 1.2, Weight: 0.6},
	{Name: "minutesBeforeClose", Type: TypeInteger, Min: 5, Max: 45, Default: 15.0, Weight: 0.4},
	{Name: "minAtrTicks", Type: TypeFloat, Min: 1, Max: 6, Default: 2.0, Weight: 0.3},
	{Name: "trailingActivationTicks", Type: TypeInteger, Min: 4, Max: 60, Default: 12.0, Weight: 0.4},
	{Name: "trailingDistanceTicks", Type: TypeInteger, Min: 2, Max: 40, Default: 8.0, Weight: 0.4},
}

// archetypeSpaces adds each archetype's entry-side knobs. An entry here
// overrides a base entry of the same name, which is how momentum archetypes
// widen the volume confirmation range.
var archetypeSpaces = map[string][]ParamSpec{
	"breakout": {
		{Name: "lookbackBars", Type: TypeInteger, Min: 10, Max: 60, Default: 20.0, Weight: 1.0},
		{Name: "breakoutThresholdTicks", Type: TypeFloat, Min: 1, Max: 12, Default: 4.0, Weight: 1.0},
		{Name: "volumeMultiple", Type: TypeFloat, Min: 1.0, Max: 3.0, Default: 1.2, Weight: 0.8},
	},
	"mean_reversion": {
		{Name: "rsiOversold", Type: TypeFloat, Min: 15, Max: 40, Default: 30.0, Weight: 1.0},
		{Name: "rsiOverbought", Type: TypeFloat, Min: 60, Max: 85, Default: 70.0, Weight: 1.0},
		{Name: "vwapDeviationAtr", Type: TypeFloat, Min: 0.5, Max: 3.0, Default: 1.5, Weight: 0.8},
		{Name: "maxAtrTicks", Type: TypeInteger, Min: 60, Max: 200, Default: 120.0, Weight: 0.3},
	},
	"vwap_touch": {
		{Name: "vwapBandTicks", Type: TypeFloat, Min: 2, Max: 20, Default: 8.0, Weight: 1.0},
		{Name: "requireReclaim", Type: TypeBoolean, Default: true, Weight: 0.3},
		{Name: "maxAtrTicks", Type: TypeInteger, Min: 40, Max: 160, Default: 80.0, Weight: 0.3},
	},
	"trend_continuation": {
		{Name: "momentumTicks", Type: TypeFloat, Min: 0, Max: 12, Default: 0.0, Weight: 0.8},
	},
	"gap_fade": {
		{Name: "gapThresholdAtr", Type: TypeFloat, Min: 0.5, Max: 2.5, Default: 1.0, Weight: 1.0},
		{Name: "maxBarsSinceOpen", Type: TypeInteger, Min: 6, Max: 48, Default: 24.0, Weight: 0.5},
		{Name: "maxAtrTicks", Type: TypeInteger, Min: 80, Max: 240, Default: 150.0, Weight: 0.3},
	},
	"gap_fill": {
		{Name: "gapThresholdAtr", Type: TypeFloat, Min: 0.8, Max: 3.0, Default: 1.5, Weight: 1.0},
		{Name: "maxBarsSinceOpen", Type: TypeInteger, Min: 12, Max: 60, Default: 36.0, Weight: 0.5},
		{Name: "maxAtrTicks", Type: TypeInteger, Min: 80, Max: 240, Default: 150.0, Weight: 0.3},
	},
	"reversal": {
		{Name: "lookbackBars", Type: TypeInteger, Min: 10, Max: 60, Default: 20.0, Weight: 1.0},
		{Name: "rsiOversold", Type: TypeFloat, Min: 10, Max: 35, Default: 25.0, Weight: 1.0},
		{Name: "rsiOverbought", Type: TypeFloat, Min: 65, Max: 90, Default: 75.0, Weight: 1.0},
	},
	"range_scalp": {
		{Name: "lookbackBars", Type: TypeInteger, Min: 15, Max: 60, Default: 30.0, Weight: 1.0},
		{Name: "rangeMaxAtr", Type: TypeFloat, Min: 1.5, Max: 5.0, Default: 3.0, Weight: 0.8},
		{Name: "bandFraction", Type: TypeFloat, Min: 0.10, Max: 0.45, Default: 0.25, Weight: 1.0},
		{Name: "maxAtrTicks", Type: TypeInteger, Min: 30, Max: 120, Default: 60.0, Weight: 0.3},
	},
	"momentum_surge": {
		{Name: "momentumTicks", Type: TypeFloat, Min: 4, Max: 20, Default: 8.0, Weight: 1.0},
		{Name: "confirmMomentumTicks", Type: TypeFloat, Min: 0, Max: 10, Default: 0.0, Weight: 0.5},
		{Name: "volumeMultiple", Type: TypeFloat, Min: 1.2, Max: 3.0, Default: 1.5, Weight: 0.8},
	},
}

// SpaceFor returns the mutable parameter space for an archetype: the shared
// base plus the archetype's own entries. Sorted by name so every iteration
// over the space is deterministic.
func SpaceFor(archetypeID string) []ParamSpec {
	merged := make(map[string]ParamSpec, len(baseSpace)+4)
	for _, p := range baseSpace {
		merged[p.Name] = p
	}
	for _, p := range archetypeSpaces[archetypeID] {
		merged[p.Name] = p
	}
	out := make([]ParamSpec, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
