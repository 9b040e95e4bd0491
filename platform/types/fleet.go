package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// KillSwitchTier is the current severity of fleet-wide trading restrictions.
type KillSwitchTier int

// Kill-switch tiers, ordered by severity. Self-healing steps exactly one
// tier toward NORMAL per healthy cycle.
const (
	TierNormal KillSwitchTier = iota
	TierSoft
	TierHard
	TierEmergency
)

func (t KillSwitchTier) String() string {
	switch t {
	case TierNormal:
		return "NORMAL"
	case TierSoft:
		return "SOFT"
	case TierHard:
		return "HARD"
	case TierEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// StepDown returns the tier one notch less severe. NORMAL steps to itself.
func (t KillSwitchTier) StepDown() KillSwitchTier {
	if t <= TierNormal {
		return TierNormal
	}
	return t - 1
}

// ViolationSeverity labels a fleet violation for tier mapping.
type ViolationSeverity string

// Violation severities.
const (
	ViolationWarning   ViolationSeverity = "WARNING"
	ViolationCritical  ViolationSeverity = "CRITICAL"
	ViolationEmergency ViolationSeverity = "EMERGENCY"
)

// Violation is one fleet limit breach found during an assessment cycle.
type Violation struct {
	Rule     string            `json:"rule"`
	Severity ViolationSeverity `json:"severity"`
	Message  string            `json:"message"`
	Value    float64           `json:"value"`
	Limit    float64           `json:"limit"`
}

// ExposureSnapshot aggregates every open position at one instant.
type ExposureSnapshot struct {
	NetContracts    int                        `json:"netContracts"`
	GrossContracts  int                        `json:"grossContracts"`
	NotionalDollars decimal.Decimal            `json:"notionalDollars"`
	PerSymbol       map[string]int             `json:"perSymbol"`
	PerSector       map[string]decimal.Decimal `json:"perSector"`
	PerStage        map[Stage]int              `json:"perStage"`
}

// FleetRiskState is the singleton the fleet engine maintains: the current
// kill-switch tier and the aggregates that justified it. It is mutated only
// from the fleet assessment task.
type FleetRiskState struct {
	Tier             KillSwitchTier   `json:"tier"`
	TierEnteredAt    time.Time        `json:"tierEnteredAt"`
	Exposure         ExposureSnapshot `json:"exposure"`
	ConcentrationHHI float64          `json:"concentrationHHI"`
	CorrelationRisk  float64          `json:"correlationRisk"` // Max single-sector share of notional.
	DailyPnl         decimal.Decimal  `json:"dailyPnl"`
	CurrentEquity    decimal.Decimal  `json:"currentEquity"`
	PeakEquity       decimal.Decimal  `json:"peakEquity"`
	DrawdownPct      float64          `json:"drawdownPct"`
	Violations       []Violation      `json:"violations"`
	SelfHealing      bool             `json:"selfHealing"` // True while easing back toward NORMAL.
	AssessedAt       time.Time        `json:"assessedAt"`
}
