package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaselineMetrics snapshots the metrics of the backtest that anchored a
// generation, along with the profile and session mode it ran under so a
// TRIALS_RELAXED baseline is never mistaken for a production one.
type BaselineMetrics struct {
	TotalTrades      int              `json:"totalTrades"`
	WinRate          *float64         `json:"winRate,omitempty"`
	NetPnl           *decimal.Decimal `json:"netPnl,omitempty"`
	ProfitFactor     *float64         `json:"profitFactor,omitempty"`
	Sharpe           *float64         `json:"sharpe,omitempty"`
	MaxDrawdownPct   *float64         `json:"maxDrawdownPct,omitempty"`
	Expectancy       *decimal.Decimal `json:"expectancy,omitempty"`
	RulesProfileUsed RulesProfile     `json:"rulesProfileUsed,omitempty"`
	SessionModeUsed  SessionMode      `json:"sessionModeUsed,omitempty"`
}

// Generation is an immutable snapshot of a bot's strategy config. Numbers
// are monotonic per bot; a generation never changes after its baseline is
// recorded.
type Generation struct {
	ID             string `json:"id"`
	BotID          string `json:"botId"`
	Number         int    `json:"generationNumber"`
	ParentNumber   int    `json:"parentNumber"`
	StrategyConfig Config `json:"strategyConfig"`

	BaselineValid         bool             `json:"baselineValid"`
	BaselineBacktestID    string           `json:"baselineBacktestId,omitempty"`
	BaselineFailureReason string           `json:"baselineFailureReason,omitempty"`
	BaselineMetrics       *BaselineMetrics `json:"baselineMetrics,omitempty"`

	// PerformanceSnapshot carries live metrics only when the generation has
	// produced trades. A zero-trade generation must never inherit its
	// parent's numbers.
	PerformanceSnapshot *BaselineMetrics `json:"performanceSnapshot,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
