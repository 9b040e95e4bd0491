// Package regime classifies market conditions from daily bars and maps the
// result to strategy guidance. A market regime read from thirty days of
// price action combines with an optional macro regime into a unified label;
// a static matrix translates each label into archetype preferences and risk
// multipliers for the evolution engine, and a per-symbol cooldown keeps
// regime flips from stampeding the research budget.
package regime

import (
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "regime")

// MarketRegime is the price-action classification of one symbol.
type MarketRegime string

// Market regimes.
const (
	MarketBull     MarketRegime = "BULL"
	MarketBear     MarketRegime = "BEAR"
	MarketSideways MarketRegime = "SIDEWAYS"
	MarketHighVol  MarketRegime = "HIGH_VOLATILITY"
	MarketLowVol   MarketRegime = "LOW_VOLATILITY"
	MarketUnknown  MarketRegime = "UNKNOWN"
)

// MacroRegime is the economy-wide classification supplied by an external
// source. Detection runs without one and degrades to MacroUnknown.
type MacroRegime string

// Macro regimes.
const (
	MacroExpansion   MacroRegime = "EXPANSION"
	MacroContraction MacroRegime = "CONTRACTION"
	MacroRecession   MacroRegime = "RECESSION"
	MacroUnknown     MacroRegime = "UNKNOWN"
)

// UnifiedRegime is the joint market and macro label that the guidance
// matrix and the regime-aware mutator key on.
type UnifiedRegime string

// Unified regimes.
const (
	BullExpansion     UnifiedRegime = "BULL_EXPANSION"
	BullContraction   UnifiedRegime = "BULL_CONTRACTION"
	BearExpansion     UnifiedRegime = "BEAR_EXPANSION"
	BearRecession     UnifiedRegime = "BEAR_RECESSION"
	SidewaysStable    UnifiedRegime = "SIDEWAYS_STABLE"
	HighVolCrisis     UnifiedRegime = "HIGH_VOL_CRISIS"
	LowVolCompression UnifiedRegime = "LOW_VOL_COMPRESSION"
	Transition        UnifiedRegime = "TRANSITION"
	Unknown           UnifiedRegime = "UNKNOWN"
)

// Features are the measurements a classification is built from.
type Features struct {
	Volatility    float64 `json:"volatility"`    // Population stddev of daily close-to-close returns.
	AvgReturn     float64 `json:"avgReturn"`     // Mean daily return over the window.
	TrendStrength float64 `json:"trendStrength"` // -1 strong down through +1 strong up.
	PriceRangePct float64 `json:"priceRangePct"` // Window high minus low, over the low.
	VolumeRatio   float64 `json:"volumeRatio"`   // Last five sessions vs the window average.
	Bars          int     `json:"bars"`
}

// Snapshot is one completed detection for one symbol.
type Snapshot struct {
	Symbol     string        `json:"symbol"`
	Market     MarketRegime  `json:"market"`
	Macro      MacroRegime   `json:"macro"`
	Unified    UnifiedRegime `json:"unified"`
	Features   Features      `json:"features"`
	AssessedAt time.Time     `json:"assessedAt"`
}
