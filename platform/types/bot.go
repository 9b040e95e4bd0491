package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is a strategy parameter map. Values are the JSON scalar types:
// float64 for numbers, bool, and string for enumerated parameters.
type Config map[string]interface{}

// Float reads a numeric parameter, falling back to def when the key is
// absent or not a number. Integer-typed parameters decode as float64 after a
// JSON round trip, so this is the accessor for both.
func (c Config) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// Int reads an integer parameter.
func (c Config) Int(key string, def int) int {
	return int(c.Float(key, float64(def)))
}

// Bool reads a boolean parameter.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// String reads an enumerated parameter.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Copy returns a shallow copy. Values are scalars, so a shallow copy is a
// full copy.
func (c Config) Copy() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Required risk config keys. Bot creation fails without them.
const (
	RiskKeyStopLossTicks   = "stopLossTicks"
	RiskKeyMaxPositionSize = "maxPositionSize"
)

// Bot is one long-lived trading strategy instance. Created in TRIALS,
// advanced and retreated along the stage ladder by the stage engine, and
// terminated by KILLED.
type Bot struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"` // Human name; by convention encodes the archetype.
	Symbol         string             `json:"symbol"`
	Stage          Stage              `json:"stage"`
	ArchetypeID    string             `json:"archetypeId,omitempty"` // Optional explicit archetype; inferred from Name when empty.
	StrategyConfig Config             `json:"strategyConfig"`
	RiskConfig     map[string]float64 `json:"riskConfig"`

	SessionMode  SessionMode `json:"sessionMode"`
	SessionStart string      `json:"sessionStart,omitempty"` // "HH:MM" exchange time, CUSTOM mode only.
	SessionEnd   string      `json:"sessionEnd,omitempty"`   // "HH:MM" exchange time, CUSTOM mode only.

	CurrentGenerationID string    `json:"currentGenerationId,omitempty"`
	StageEnteredAt      time.Time `json:"stageEnteredAt"`
	StageLockedUntil    time.Time `json:"stageLockedUntil,omitempty"` // Stage engine skips the bot until this passes.
	ManualPromotion     bool      `json:"manualPromotion"`            // Operator promotes by hand; only CANARY gating still applies.

	AllocatedCapital decimal.Decimal `json:"allocatedCapital"`
	PeakEquity       decimal.Decimal `json:"peakEquity"`

	// Research-loop scores consumed by the TRIALS promotion gate. Nil until
	// the bot has been evaluated at least once.
	ConfidenceScore *float64 `json:"confidenceScore,omitempty"`
	UniquenessScore *float64 `json:"uniquenessScore,omitempty"`

	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StopLossTicks returns the required stop distance from the risk config.
func (b *Bot) StopLossTicks() float64 {
	return b.RiskConfig[RiskKeyStopLossTicks]
}

// MaxPositionSize returns the contract cap from the risk config.
func (b *Bot) MaxPositionSize() float64 {
	return b.RiskConfig[RiskKeyMaxPositionSize]
}

// DaysInStage computes whole days since the bot entered its current stage.
func (b *Bot) DaysInStage(now time.Time) int {
	if b.StageEnteredAt.IsZero() {
		return 0
	}
	return int(now.Sub(b.StageEnteredAt).Hours() / 24)
}
