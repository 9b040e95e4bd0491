package regime

// Guidance is the static playbook for one unified regime: which archetypes
// to favor, which to tolerate, which to shelve, and how aggressively the
// fleet should size relative to each bot's own risk config.
type Guidance struct {
	OptimalArchetypes    []string `json:"optimalArchetypes"`
	AcceptableArchetypes []string `json:"acceptableArchetypes"`
	AvoidArchetypes      []string `json:"avoidArchetypes"`
	PositionMultiplier   float64  `json:"positionMultiplier"`
	StopLossMultiplier   float64  `json:"stopLossMultiplier"`
	TakeProfitMultiplier float64  `json:"takeProfitMultiplier"`
}

var guidanceMatrix = map[UnifiedRegime]Guidance{
	BullExpansion: {
		OptimalArchetypes:    []string{"trend_continuation", "breakout", "momentum_surge"},
		AcceptableArchetypes: []string{"vwap_touch", "gap_fill"},
		AvoidArchetypes:      []string{"reversal", "gap_fade"},
		PositionMultiplier:   1.0,
		StopLossMultiplier:   1.0,
		TakeProfitMultiplier: 1.2,
	},
	BullContraction: {
		OptimalArchetypes:    []string{"trend_continuation", "vwap_touch"},
		AcceptableArchetypes: []string{"breakout", "gap_fill", "mean_reversion"},
		AvoidArchetypes:      []string{"momentum_surge", "reversal"},
		PositionMultiplier:   0.8,
		StopLossMultiplier:   0.9,
		TakeProfitMultiplier: 1.0,
	},
	BearExpansion: {
		OptimalArchetypes:    []string{"gap_fade", "reversal"},
		AcceptableArchetypes: []string{"mean_reversion", "vwap_touch", "range_scalp"},
		AvoidArchetypes:      []string{"breakout", "momentum_surge"},
		PositionMultiplier:   0.7,
		StopLossMultiplier:   0.9,
		TakeProfitMultiplier: 0.9,
	},
	BearRecession: {
		OptimalArchetypes:    []string{"gap_fade", "mean_reversion"},
		AcceptableArchetypes: []string{"reversal", "range_scalp"},
		AvoidArchetypes:      []string{"trend_continuation", "breakout", "momentum_surge"},
		PositionMultiplier:   0.5,
		StopLossMultiplier:   0.8,
		TakeProfitMultiplier: 0.8,
	},
	SidewaysStable: {
		OptimalArchetypes:    []string{"range_scalp", "mean_reversion", "vwap_touch"},
		AcceptableArchetypes: []string{"gap_fill", "gap_fade"},
		AvoidArchetypes:      []string{"breakout", "trend_continuation", "momentum_surge"},
		PositionMultiplier:   1.0,
		StopLossMultiplier:   1.0,
		TakeProfitMultiplier: 1.0,
	},
	HighVolCrisis: {
		AcceptableArchetypes: []string{"gap_fade", "reversal"},
		AvoidArchetypes:      []string{"breakout", "trend_continuation", "momentum_surge", "range_scalp"},
		PositionMultiplier:   0.3,
		StopLossMultiplier:   1.5,
		TakeProfitMultiplier: 1.5,
	},
	LowVolCompression: {
		OptimalArchetypes:    []string{"range_scalp", "mean_reversion"},
		AcceptableArchetypes: []string{"vwap_touch", "gap_fill"},
		AvoidArchetypes:      []string{"momentum_surge", "trend_continuation"},
		PositionMultiplier:   0.8,
		StopLossMultiplier:   0.8,
		TakeProfitMultiplier: 0.8,
	},
	Transition: {
		OptimalArchetypes:    []string{"vwap_touch"},
		AcceptableArchetypes: []string{"mean_reversion", "gap_fill", "range_scalp"},
		AvoidArchetypes:      []string{"breakout", "momentum_surge"},
		PositionMultiplier:   0.6,
		StopLossMultiplier:   1.0,
		TakeProfitMultiplier: 0.9,
	},
	Unknown: {
		AcceptableArchetypes: []string{"vwap_touch", "mean_reversion"},
		PositionMultiplier:   0.5,
		StopLossMultiplier:   1.0,
		TakeProfitMultiplier: 1.0,
	},
}

// GuidanceFor returns the playbook for a unified regime. Labels outside the
// matrix get the UNKNOWN row, which sizes down and favors nothing.
func GuidanceFor(u UnifiedRegime) Guidance {
	if g, ok := guidanceMatrix[u]; ok {
		return g
	}
	return guidanceMatrix[Unknown]
}
