package stage

import (
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/shopspring/decimal"
)

// tradeOn closes a trade at 13:00 exchange time on the given day.
func tradeOn(year int, month time.Month, day int, net int64) *types.TradeLog {
	exit := time.Date(year, month, day, 13, 0, 0, 0, strategy.ExchangeTZ())
	return &types.TradeLog{
		ExitTime: exit.UTC(),
		NetPnl:   decimal.NewFromInt(net),
	}
}

func TestConsecutiveLosingDays(t *testing.T) {
	loc := strategy.ExchangeTZ()

	assert.Equal(t, 0, ConsecutiveLosingDays(nil, loc))

	trades := []*types.TradeLog{
		tradeOn(2024, time.March, 4, 100),
		tradeOn(2024, time.March, 5, -50),
		tradeOn(2024, time.March, 6, -25),
	}
	assert.Equal(t, 2, ConsecutiveLosingDays(trades, loc))

	// Most recent day profitable: streak resets.
	trades = append(trades, tradeOn(2024, time.March, 7, 10))
	assert.Equal(t, 0, ConsecutiveLosingDays(trades, loc))
}

func TestConsecutiveLosingDays_WeekendDoesNotBreakStreak(t *testing.T) {
	loc := strategy.ExchangeTZ()
	trades := []*types.TradeLog{
		tradeOn(2024, time.March, 7, -10), // Thursday
		tradeOn(2024, time.March, 8, -10), // Friday
		tradeOn(2024, time.March, 11, -5), // Monday
	}
	assert.Equal(t, 3, ConsecutiveLosingDays(trades, loc))
}

func TestConsecutiveLosingDays_SameDayTradesNet(t *testing.T) {
	loc := strategy.ExchangeTZ()
	trades := []*types.TradeLog{
		tradeOn(2024, time.March, 5, -60),
		tradeOn(2024, time.March, 5, 80), // Day nets positive.
		tradeOn(2024, time.March, 6, -25),
	}
	assert.Equal(t, 1, ConsecutiveLosingDays(trades, loc))

	// A breakeven day is not a losing day.
	trades = []*types.TradeLog{
		tradeOn(2024, time.March, 5, -60),
		tradeOn(2024, time.March, 5, 60),
		tradeOn(2024, time.March, 6, -25),
	}
	assert.Equal(t, 1, ConsecutiveLosingDays(trades, loc))
}
