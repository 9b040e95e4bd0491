package backtest

import (
	"testing"

	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

func TestTradePnl_ShortWin(t *testing.T) {
	inst, err := instruments.Get("MES")
	require.NoError(t, err)

	// Six ticks in favor on two contracts at $1.25 a tick, less $0.52
	// commission per side per contract and one tick of slippage each way.
	gross, fees, slippage, net := tradePnl(inst, types.Short, 2, 4770.00, 4768.50, 1)
	assert.Equal(t, "15", gross.String())
	assert.Equal(t, "2.08", fees.String())
	assert.Equal(t, "5", slippage.String())
	assert.Equal(t, "7.92", net.String())
}

func TestTradePnl_LongLoss(t *testing.T) {
	inst, err := instruments.Get("MES")
	require.NoError(t, err)

	gross, fees, slippage, net := tradePnl(inst, types.Long, 1, 4770.00, 4769.00, 0)
	assert.Equal(t, "-5", gross.String())
	assert.Equal(t, "1.04", fees.String())
	assert.Equal(t, "0", slippage.String())
	assert.Equal(t, "-6.04", net.String())
}
