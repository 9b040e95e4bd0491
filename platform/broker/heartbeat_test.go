package broker

import (
	"context"
	"testing"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// flakyAdapter fails Ping while down is true.
type flakyAdapter struct {
	*PaperAdapter
	down bool
}

func newFlakyAdapter() *flakyAdapter {
	return &flakyAdapter{PaperAdapter: NewPaperAdapter(), down: true}
}

func (f *flakyAdapter) Ping(context.Context) error {
	if f.down {
		return errors.New("no route to venue")
	}
	return nil
}

func TestHeartbeat_DegradesAndRecovers(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	cfg := params.Platform()

	adapter := newFlakyAdapter()
	hb := NewHeartbeat("test", adapter)
	ctx := context.Background()

	assert.Equal(t, Healthy, hb.Health(), "no misses yet")

	for i := 0; i < cfg.HeartbeatDegraded-1; i++ {
		hb.Beat(ctx)
	}
	assert.Equal(t, Healthy, hb.Health(), "below the degraded threshold misses only warn")
	assert.Equal(t, true, hb.Allow())

	hb.Beat(ctx)
	assert.Equal(t, Degraded, hb.Health())
	assert.Equal(t, false, hb.Allow(), "a degraded broker gates the autonomy loop")

	for hb.Health() != Unavailable {
		hb.Beat(ctx)
	}
	assert.Equal(t, false, hb.Allow())

	// One good ping clears the slate.
	adapter.down = false
	assert.Equal(t, Healthy, hb.Beat(ctx))
	assert.Equal(t, true, hb.Allow())
}

func TestService_RefusesNewExposureWhenDegraded(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	cfg := params.Platform()

	adapter := newFlakyAdapter()
	svc := NewService(context.Background(), adapter)
	for i := 0; i < cfg.HeartbeatDegraded; i++ {
		svc.Heartbeat().Beat(context.Background())
	}

	adapter.SetMark("MES", decimal.RequireFromString("5000"))
	_, err := svc.SubmitOrder(context.Background(), &Order{
		ID: "o1", BotID: "b1", Symbol: "MES", Side: types.Long, Quantity: 1, Type: OrderMarket,
	})
	assert.ErrorContains(t, "refusing new exposure", err)

	// Reduce-only orders still pass so positions can be flattened.
	report, err := svc.SubmitOrder(context.Background(), &Order{
		ID: "o2", BotID: "b1", Symbol: "MES", Side: types.Short, Quantity: 1, Type: OrderMarket, Reduce: true,
	})
	assert.NoError(t, err)
	if report != nil {
		assert.Equal(t, ExecFilled, report.Status)
	}
}
