package broker

import (
	"context"
	"sync"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/shopspring/decimal"
)

// PaperAdapter fills orders immediately at the caller's limit price, or at
// the instrument's last mark when none is given. It backs the simulation
// stages, where orders must behave like a venue without touching one.
type PaperAdapter struct {
	mu    sync.Mutex
	marks map[string]decimal.Decimal
	open  map[string]*Order
}

// NewPaperAdapter returns an adapter with no marks; SetMark seeds prices.
func NewPaperAdapter() *PaperAdapter {
	return &PaperAdapter{
		marks: make(map[string]decimal.Decimal),
		open:  make(map[string]*Order),
	}
}

// SetMark records the current mark for a symbol.
func (p *PaperAdapter) SetMark(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// SubmitOrder fills market orders at the mark and limit orders at their
// limit price, rounded to the instrument tick.
func (p *PaperAdapter) SubmitOrder(_ context.Context, o *Order) (*ExecutionReport, error) {
	inst, err := instruments.Get(o.Symbol)
	if err != nil {
		return &ExecutionReport{OrderID: o.ID, Status: ExecRejected, Reason: err.Error(), VenueTime: time.Now()}, nil
	}
	if o.Quantity <= 0 {
		return &ExecutionReport{OrderID: o.ID, Status: ExecRejected, Reason: "non-positive quantity", VenueTime: time.Now()}, nil
	}

	var price decimal.Decimal
	switch o.Type {
	case OrderLimit:
		price = o.LimitPrice
	default:
		p.mu.Lock()
		mark, ok := p.marks[o.Symbol]
		p.mu.Unlock()
		if !ok {
			return nil, errclass.Newf(errclass.Transient, "no mark for %s", o.Symbol)
		}
		price = mark
	}
	price = inst.RoundToTick(price)

	p.mu.Lock()
	p.open[o.ID] = o
	p.mu.Unlock()
	return &ExecutionReport{
		OrderID:   o.ID,
		Status:    ExecFilled,
		FillPrice: price,
		FillQty:   o.Quantity,
		VenueTime: time.Now(),
	}, nil
}

// CancelOrder cancels a resting order. Filled paper orders cannot be
// canceled; the venue reports CANCELED only for known, still-open ids.
func (p *PaperAdapter) CancelOrder(_ context.Context, orderID string) (*ExecutionReport, error) {
	p.mu.Lock()
	_, ok := p.open[orderID]
	delete(p.open, orderID)
	p.mu.Unlock()
	if !ok {
		return &ExecutionReport{OrderID: orderID, Status: ExecRejected, Reason: "unknown order", VenueTime: time.Now()}, nil
	}
	return &ExecutionReport{OrderID: orderID, Status: ExecCanceled, VenueTime: time.Now()}, nil
}

// Ping always succeeds; the paper venue is the process itself.
func (p *PaperAdapter) Ping(context.Context) error {
	return nil
}
