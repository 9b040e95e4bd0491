// Package broker defines the order-routing contract between the platform and
// an execution venue. The platform never talks to a venue directly: every
// adapter call goes through a Guard that applies the per-class timeout, retry,
// and circuit-breaker policy, and a Heartbeat monitor that degrades the
// adapter's health when the venue stops answering. A DEGRADED or DISCONNECTED
// adapter gates the autonomy loop.
package broker

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "broker")

// OrderType distinguishes immediate from resting orders.
type OrderType string

// Supported order types.
const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// Order is a request to open or close contracts at a venue.
type Order struct {
	ID         string          `json:"id"`
	BotID      string          `json:"botId"`
	Symbol     string          `json:"symbol"`
	Side       types.Side      `json:"side"`
	Quantity   int             `json:"quantity"`
	Type       OrderType       `json:"type"`
	LimitPrice decimal.Decimal `json:"limitPrice,omitempty"`
	Reduce     bool            `json:"reduce"` // Exit-only; may not increase exposure.
	TraceID    string          `json:"traceId,omitempty"`
}

// ExecStatus is the venue's disposition of an order.
type ExecStatus string

// Execution report statuses.
const (
	ExecFilled   ExecStatus = "FILLED"
	ExecRejected ExecStatus = "REJECTED"
	ExecCanceled ExecStatus = "CANCELED"
)

// ExecutionReport is the venue's answer to a submit or cancel.
type ExecutionReport struct {
	OrderID   string          `json:"orderId"`
	Status    ExecStatus      `json:"status"`
	FillPrice decimal.Decimal `json:"fillPrice,omitempty"`
	FillQty   int             `json:"fillQty"`
	Reason    string          `json:"reason,omitempty"`
	VenueTime time.Time       `json:"venueTime"`
}

// Adapter is the venue-side contract. Implementations are expected to be
// safe for concurrent use; the Guard wraps each call with the broker-class
// resilience policy.
type Adapter interface {
	SubmitOrder(ctx context.Context, o *Order) (*ExecutionReport, error)
	CancelOrder(ctx context.Context, orderID string) (*ExecutionReport, error)
	// Ping is the heartbeat probe. It must be cheap and must not mutate
	// venue state.
	Ping(ctx context.Context) error
}

// Health is the adapter's availability as judged by the heartbeat monitor.
type Health string

// Health states, ordered by severity.
const (
	Healthy     Health = "HEALTHY"
	Degraded    Health = "DEGRADED"
	Unavailable Health = "UNAVAILABLE"
)
