package broker

import (
	"context"
	"testing"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/shopspring/decimal"
)

func TestPaperAdapter_FillsAtTickAlignedPrice(t *testing.T) {
	p := NewPaperAdapter()
	p.SetMark("MES", decimal.RequireFromString("5001.13"))

	report, err := p.SubmitOrder(context.Background(), &Order{
		ID: "o1", BotID: "b1", Symbol: "MES", Side: types.Long, Quantity: 2, Type: OrderMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, ExecFilled, report.Status)
	assert.Equal(t, 2, report.FillQty)
	assert.Equal(t, "5001.25", report.FillPrice.String(), "fill must snap to the MES quarter tick")
}

func TestPaperAdapter_RejectsUnknownSymbol(t *testing.T) {
	p := NewPaperAdapter()
	report, err := p.SubmitOrder(context.Background(), &Order{
		ID: "o1", Symbol: "BTC", Side: types.Long, Quantity: 1, Type: OrderMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, ExecRejected, report.Status)
}

func TestPaperAdapter_CancelKnownOrderOnly(t *testing.T) {
	p := NewPaperAdapter()
	p.SetMark("GC", decimal.RequireFromString("2400"))
	_, err := p.SubmitOrder(context.Background(), &Order{
		ID: "o1", Symbol: "GC", Side: types.Short, Quantity: 1, Type: OrderMarket,
	})
	require.NoError(t, err)

	report, err := p.CancelOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, ExecCanceled, report.Status)

	report, err = p.CancelOrder(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, ExecRejected, report.Status)
}
