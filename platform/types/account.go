package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the trading status of a bot's capital account.
type AccountStatus string

// Account statuses.
const (
	AccountActive AccountStatus = "active"
	AccountPaused AccountStatus = "paused"
	AccountBlown  AccountStatus = "blown"
)

// Account is a bot's capital record. Drawdown and daily-loss gates read it
// before every position open.
type Account struct {
	BotID             string          `json:"botId"`
	Balance           decimal.Decimal `json:"balance"`
	StartOfDayBalance decimal.Decimal `json:"startOfDayBalance"`
	PeakEquity        decimal.Decimal `json:"peakEquity"`
	DailyPnl          decimal.Decimal `json:"dailyPnl"`
	Status            AccountStatus   `json:"status"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// DrawdownPct computes the percent decline from peak equity. A zero or
// negative peak reports no drawdown rather than dividing by it.
func (a *Account) DrawdownPct() float64 {
	if a.PeakEquity.Sign() <= 0 {
		return 0
	}
	dd := a.PeakEquity.Sub(a.Balance).Div(a.PeakEquity).Mul(decimal.NewFromInt(100))
	f, _ := dd.Float64()
	if f < 0 {
		return 0
	}
	return f
}

// Position is one open position as the risk engine sees it. The fleet loop
// aggregates these into exposure snapshots; per-bot VaR reads them directly.
type Position struct {
	ID            string          `json:"id"`
	BotID         string          `json:"botId"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      int             `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	Stage         Stage           `json:"stage"`
	Sector        string          `json:"sector"`
	OpenedAt      time.Time       `json:"openedAt"`
	MarkedForExit bool            `json:"markedForExit"`
}

// Notional returns the position's dollar exposure: |qty| * entry * pointValue.
func (p *Position) Notional(pointValue decimal.Decimal) decimal.Decimal {
	qty := decimal.NewFromInt(int64(p.Quantity))
	return p.EntryPrice.Mul(pointValue).Mul(qty).Abs()
}

// AccountAttempt records one blown account. A bot that blows its account is
// moved to KILLED and the attempt is appended here for the post-mortem trail.
type AccountAttempt struct {
	ID           string          `json:"id"`
	BotID        string          `json:"botId"`
	Reason       string          `json:"reason"`
	FinalBalance decimal.Decimal `json:"finalBalance"`
	PeakEquity   decimal.Decimal `json:"peakEquity"`
	DrawdownPct  float64         `json:"drawdownPct"`
	CreatedAt    time.Time       `json:"createdAt"`
}
