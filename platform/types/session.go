package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionMode selects which hours of the trading day a bot operates in.
type SessionMode string

// Canonical session modes.
const (
	SessionRTH    SessionMode = "RTH_US"    // 09:30-16:15 exchange time.
	SessionETH    SessionMode = "ETH"       // 18:00-09:30, wraps midnight.
	SessionFull   SessionMode = "FULL_24x5" // Session filters bypassed entirely.
	SessionCustom SessionMode = "CUSTOM"    // Bot supplies its own open and close.
)

// ParseSessionMode validates a session-mode string.
func ParseSessionMode(s string) (SessionMode, bool) {
	switch SessionMode(s) {
	case SessionRTH, SessionETH, SessionFull, SessionCustom:
		return SessionMode(s), true
	}
	return "", false
}

// SessionStatus tracks a backtest session through its pipeline.
type SessionStatus string

// Session statuses.
const (
	SessionQueued    SessionStatus = "queued"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ProvenanceStatus records whether a session's built rules matched the
// archetype's expected entry condition.
type ProvenanceStatus string

// Provenance verdicts.
const (
	ProvenanceVerified ProvenanceStatus = "VERIFIED"
	ProvenanceMismatch ProvenanceStatus = "MISMATCH"
)

// RulesProfile names the parameter set a backtest ran under.
type RulesProfile string

// Rules profiles. Relaxation is scoped to TRIALS; every other stage runs
// PRODUCTION.
const (
	ProfileTrialsRelaxed RulesProfile = "TRIALS_RELAXED"
	ProfileProduction    RulesProfile = "PRODUCTION"
)

// Relaxation flags applied under ProfileTrialsRelaxed.
const (
	RelaxWiderRSIBands     = "WIDER_RSI_BANDS"
	RelaxSkipVolumeConfirm = "SKIP_VOLUME_CONFIRM"
	RelaxLowerThresholds   = "LOWER_THRESHOLDS"
	RelaxRelaxedEntry      = "RELAXED_ENTRY"
)

// TrialsRelaxFlags returns the flag set recorded on TRIALS_RELAXED sessions.
func TrialsRelaxFlags() []string {
	return []string{RelaxWiderRSIBands, RelaxSkipVolumeConfirm, RelaxLowerThresholds, RelaxRelaxedEntry}
}

// DataProvenance identifies where a session's bars came from, precisely
// enough to audit or replay the fetch.
type DataProvenance struct {
	Provider     string `json:"provider"` // "databento" or "simulated".
	Dataset      string `json:"dataset,omitempty"`
	Schema       string `json:"schema,omitempty"`
	RawRequestID string `json:"rawRequestId,omitempty"`
	Simulated    bool   `json:"simulated"`
}

// InstrumentSnapshot copies the contract math a session priced with, so a
// later registry change cannot silently alter a replay.
type InstrumentSnapshot struct {
	Symbol     string          `json:"symbol"`
	PointValue decimal.Decimal `json:"pointValue"`
	TickSize   decimal.Decimal `json:"tickSize"`
	Commission decimal.Decimal `json:"commission"`
	Sector     string          `json:"sector"`
}

// ConfigSnapshot freezes every input a backtest ran with. Identical
// snapshots must reproduce identical output.
type ConfigSnapshot struct {
	Seed           uint32             `json:"seed"`
	ConfigHash     string             `json:"configHash"` // First 16 hex of sha256 over the config shape.
	Symbol         string             `json:"symbol"`
	Timeframe      string             `json:"timeframe"`
	StartTime      time.Time          `json:"startTime"`
	EndTime        time.Time          `json:"endTime"`
	InitialCapital decimal.Decimal    `json:"initialCapital"`
	SessionFilter  string             `json:"sessionFilter"` // "RTH"; TRIALS/PAPER sessions record the widened window too.
	SessionOpen    string             `json:"sessionOpen"`
	SessionClose   string             `json:"sessionClose"`
	OriginalOpen   string             `json:"originalOpen,omitempty"`  // Pre-widening open when the window was adjusted.
	OriginalClose  string             `json:"originalClose,omitempty"` // Pre-widening close when the window was adjusted.
	FillModel      string             `json:"fillModel"`               // "NEXT_BAR_OPEN".
	SamplingMethod string             `json:"samplingMethod"`
	Instrument     InstrumentSnapshot `json:"instrument"`
	Provenance     DataProvenance     `json:"dataProvenance"`
	StrategyConfig Config             `json:"strategyConfig"`
}

// SessionMetrics aggregates a completed session's trades. Pointer fields are
// nil until computed: a completed session with totalTrades > 0 must have
// every field populated.
type SessionMetrics struct {
	TotalTrades    int              `json:"totalTrades"`
	WinningTrades  int              `json:"winningTrades"`
	LosingTrades   int              `json:"losingTrades"`
	WinRate        *float64         `json:"winRate,omitempty"`        // Percent.
	NetPnl         *decimal.Decimal `json:"netPnl,omitempty"`         // Dollars.
	ProfitFactor   *float64         `json:"profitFactor,omitempty"`   // grossWin/|grossLoss|, capped when lossless.
	Sharpe         *float64         `json:"sharpe,omitempty"`         // Annualized.
	MaxDrawdownPct *float64         `json:"maxDrawdownPct,omitempty"` // Percent, from the equity curve.
	Expectancy     *decimal.Decimal `json:"expectancy,omitempty"`     // Average net PnL per trade, dollars.
}

// Complete reports whether every nullable metric is populated.
func (m *SessionMetrics) Complete() bool {
	return m.WinRate != nil && m.NetPnl != nil && m.ProfitFactor != nil &&
		m.Sharpe != nil && m.MaxDrawdownPct != nil && m.Expectancy != nil
}

// EquityPoint is one step of a session's equity curve.
type EquityPoint struct {
	Time        time.Time       `json:"time"`
	Equity      decimal.Decimal `json:"equity"`
	DrawdownPct float64         `json:"drawdownPct"`
}

// ErrorClassification is the single classifier verdict persisted on a failed
// session.
type ErrorClassification struct {
	Code       string `json:"code"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	ShouldHalt bool   `json:"shouldHalt"`
}

// BacktestSession records one end-to-end backtest: its frozen inputs, the
// provenance verdicts, and the resulting metrics.
type BacktestSession struct {
	ID           string        `json:"id"`
	BotID        string        `json:"botId"`
	GenerationID string        `json:"generationId,omitempty"`
	Status       SessionStatus `json:"status"`

	ConfigSnapshot *ConfigSnapshot `json:"configSnapshot,omitempty"`

	RulesHash              string           `json:"rulesHash,omitempty"`
	RulesSummary           string           `json:"rulesSummary,omitempty"`
	ExpectedEntryCondition string           `json:"expectedEntryCondition,omitempty"`
	ActualEntryCondition   string           `json:"actualEntryCondition,omitempty"`
	ProvenanceStatus       ProvenanceStatus `json:"provenanceStatus,omitempty"`

	RulesProfileUsed    RulesProfile `json:"rulesProfileUsed,omitempty"`
	SessionModeUsed     SessionMode  `json:"sessionModeUsed,omitempty"`
	RelaxedFlagsApplied []string     `json:"relaxedFlagsApplied,omitempty"`

	Metrics               SessionMetrics `json:"metrics"`
	EquityCurve           []EquityPoint  `json:"equityCurve,omitempty"`
	TotalBarCount         int            `json:"totalBarCount"`
	SessionFilterBarCount int            `json:"sessionFilterBarCount"`

	ErrorClassification *ErrorClassification `json:"errorClassification,omitempty"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}
