package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a position.
type Side string

// Position sides.
const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Exit reason codes stamped on closed trades.
const (
	ExitStopLoss     = "STOP_LOSS"
	ExitTakeProfit   = "TAKE_PROFIT"
	ExitTrailingStop = "TRAILING_STOP"
	ExitTimeStop     = "TIME_STOP"
	ExitSessionEnd   = "SESSION_END"
	ExitEndOfData    = "END_OF_DATA"
)

// TradeMetadata embeds the provenance of a single trade.
type TradeMetadata struct {
	TraceID      string `json:"traceId"`
	RuleVersion  string `json:"ruleVersion"`
	RulesProfile string `json:"rulesProfile,omitempty"`
}

// TradeLog is one executed simulated trade. All rows for a session are
// inserted atomically.
type TradeLog struct {
	ID                string `json:"id"`
	BacktestSessionID string `json:"backtestSessionId"`
	BotID             string `json:"botId"`
	Symbol            string `json:"symbol"`

	Side       Side            `json:"side"`
	Quantity   int             `json:"quantity"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitTime   time.Time       `json:"exitTime"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`

	EntryReasonCode string `json:"entryReasonCode"` // Canonical entry condition that fired.
	ExitReason      string `json:"exitReason"`
	HoldBars        int    `json:"holdBars"`

	GrossPnl decimal.Decimal `json:"grossPnl"`
	Fees     decimal.Decimal `json:"fees"`
	Slippage decimal.Decimal `json:"slippage"`
	NetPnl   decimal.Decimal `json:"netPnl"`

	Metadata TradeMetadata `json:"metadata"`
}
