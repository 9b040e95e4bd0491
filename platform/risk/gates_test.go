package risk

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	dbtest "github.com/gauntletlabs/gauntlet/platform/db/testing"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/shopspring/decimal"
)

func setupEngine(t *testing.T) (iface.Database, *Engine) {
	database := dbtest.SetupDB(t)
	return database, NewEngine(database, audit.New(database))
}

func seedRiskBot(t *testing.T, database iface.Database, id string, stage types.Stage) *types.Bot {
	t.Helper()
	now := time.Now().UTC()
	bot := &types.Bot{
		ID:     id,
		Name:   "MES Breakout " + id,
		Symbol: "MES",
		Stage:  stage,
		RiskConfig: map[string]float64{
			types.RiskKeyStopLossTicks:   10,
			types.RiskKeyMaxPositionSize: 5,
		},
		SessionMode:      types.SessionRTH,
		AllocatedCapital: decimal.NewFromInt(10_000),
		StageEnteredAt:   now.Add(-10 * 24 * time.Hour),
		CreatedAt:        now.Add(-30 * 24 * time.Hour),
		UpdatedAt:        now,
	}
	require.NoError(t, database.SaveBot(context.Background(), bot))
	return bot
}

func seedAccount(t *testing.T, database iface.Database, botID string, balance, peak, startOfDay, daily float64) *types.Account {
	t.Helper()
	a := &types.Account{
		BotID:             botID,
		Balance:           decimal.NewFromFloat(balance),
		StartOfDayBalance: decimal.NewFromFloat(startOfDay),
		PeakEquity:        decimal.NewFromFloat(peak),
		DailyPnl:          decimal.NewFromFloat(daily),
		Status:            types.AccountActive,
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, database.SaveAccount(context.Background(), a))
	return a
}

func TestCheckOpen_KilledBotHardBlocks(t *testing.T) {
	database, engine := setupEngine(t)
	seedRiskBot(t, database, "b1", types.StageKilled)

	d, err := engine.CheckOpen(context.Background(), "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockHard, d.Level)
	assert.Equal(t, "lifecycle", d.Gate)
	assert.Equal(t, false, d.Level.AllowsOpen())
	assert.Equal(t, false, d.Level.AllowsExit())
}

func TestCheckOpen_NoAccountAllows(t *testing.T) {
	database, engine := setupEngine(t)
	seedRiskBot(t, database, "b1", types.StageTrials)

	d, err := engine.CheckOpen(context.Background(), "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockNone, d.Level)
}

func TestCheckOpen_DrawdownTiers(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	cases := []struct {
		balance float64
		want    BlockLevel
	}{
		{balance: 9_500, want: BlockNone},    // 5% drawdown
		{balance: 8_900, want: BlockWarning}, // 11%
		{balance: 8_400, want: BlockSoft},    // 16%
		{balance: 7_900, want: BlockHard},    // 21%
	}
	for i, tc := range cases {
		id := fmt.Sprintf("b%d", i)
		seedRiskBot(t, database, id, types.StageLive)
		seedAccount(t, database, id, tc.balance, 10_000, tc.balance, 0)

		d, err := engine.CheckOpen(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, tc.want, d.Level, "balance %.0f", tc.balance)
		if tc.want >= BlockWarning {
			assert.Equal(t, "drawdown", d.Gate)
		}
	}
}

func TestCheckOpen_DailyLossTiers(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	cases := []struct {
		daily float64
		want  BlockLevel
	}{
		{daily: 150, want: BlockNone},     // A winning day never gates.
		{daily: -100, want: BlockNone},    // 1% loss
		{daily: -250, want: BlockWarning}, // 2.5%
		{daily: -350, want: BlockSoft},    // 3.5%
		{daily: -550, want: BlockHard},    // 5.5%
	}
	for i, tc := range cases {
		id := fmt.Sprintf("b%d", i)
		seedRiskBot(t, database, id, types.StageLive)
		seedAccount(t, database, id, 10_000+tc.daily, 10_000, 10_000, tc.daily)

		d, err := engine.CheckOpen(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, tc.want, d.Level, "daily %.0f", tc.daily)
		if tc.want >= BlockWarning {
			assert.Equal(t, "dailyLoss", d.Gate)
		}
	}
}

func TestCheckOpen_BlownAccountKillsBot(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	// 35% drawdown from peak: past the 30% blown threshold.
	seedRiskBot(t, database, "b1", types.StageLive)
	seedAccount(t, database, "b1", 6_500, 10_000, 6_500, 0)

	d, err := engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockHard, d.Level)
	assert.Equal(t, true, d.Blown)
	assert.Equal(t, "blownAccount", d.Gate)

	bot, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StageKilled, bot.Stage)

	account, err := database.Account(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.AccountBlown, account.Status)

	attempts, err := database.AccountAttempts(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, len(attempts))
	assert.Equal(t, true, strings.Contains(attempts[0].Reason, "blown-account threshold"))

	entry, err := database.LatestAuditEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.EventBotKilled, entry.EventType)
	assert.Equal(t, "b1", entry.EntityID)

	// A later check sees the killed bot, not a second blow-up.
	d, err = engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, "lifecycle", d.Gate)
	attempts, err = database.AccountAttempts(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, len(attempts))
}

func TestCheckOpen_BlownByCapitalRemaining(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	// 9% of the allocation left but only a 20% drawdown from peak: the
	// capital floor fires on its own.
	bot := seedRiskBot(t, database, "b1", types.StageLive)
	bot.AllocatedCapital = decimal.NewFromInt(10_000)
	require.NoError(t, database.SaveBot(ctx, bot))
	seedAccount(t, database, "b1", 900, 1_100, 900, 0)

	d, err := engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, true, d.Blown)
	assert.Equal(t, true, strings.Contains(d.Reason, "below 10%"), "reason: %s", d.Reason)
}

func TestCheckOpen_PausedAccountBlocks(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	seedRiskBot(t, database, "b1", types.StageLive)
	a := seedAccount(t, database, "b1", 10_000, 10_000, 10_000, 0)
	a.Status = types.AccountPaused
	require.NoError(t, database.SaveAccount(ctx, a))

	d, err := engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockHard, d.Level)
	assert.Equal(t, "account", d.Gate)
}

func TestCheckOpen_PositionSizeCap(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	// LIVE stage caps at 3 contracts; the bot's own cap of 5 is looser.
	seedRiskBot(t, database, "b1", types.StageLive)
	seedAccount(t, database, "b1", 10_000, 10_000, 10_000, 0)

	d, err := engine.CheckOpen(ctx, "b1", 4)
	require.NoError(t, err)
	assert.Equal(t, BlockSoft, d.Level)
	assert.Equal(t, "positionSize", d.Gate)
	assert.Equal(t, true, d.Level.AllowsExit())

	d, err = engine.CheckOpen(ctx, "b1", 3)
	require.NoError(t, err)
	assert.Equal(t, BlockNone, d.Level)

	// A tighter bot-level cap wins over the stage cap.
	bot, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	bot.RiskConfig[types.RiskKeyMaxPositionSize] = 2
	require.NoError(t, database.SaveBot(ctx, bot))

	d, err = engine.CheckOpen(ctx, "b1", 3)
	require.NoError(t, err)
	assert.Equal(t, BlockSoft, d.Level)
	assert.Equal(t, "positionSize", d.Gate)
}

func TestCheckOpen_VaRGate(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	seedRiskBot(t, database, "b1", types.StageLive)
	seedAccount(t, database, "b1", 10_000, 10_000, 10_000, 0)

	// Twenty recent trades, the worst a $600-per-contract loss. With three
	// open contracts the tail estimate is $1800, past 5% of the balance.
	now := time.Now().UTC()
	sess := &types.BacktestSession{
		ID:              "s1",
		BotID:           "b1",
		Status:          types.SessionRunning,
		SessionModeUsed: types.SessionRTH,
	}
	require.NoError(t, database.SaveBacktestSession(ctx, sess))
	var trades []*types.TradeLog
	for i := 0; i < 20; i++ {
		pnl := decimal.NewFromInt(50)
		if i == 0 {
			pnl = decimal.NewFromInt(-600)
		}
		trades = append(trades, &types.TradeLog{
			ID:                fmt.Sprintf("s1-t%04d", i),
			BacktestSessionID: "s1",
			BotID:             "b1",
			Symbol:            "MES",
			Side:              types.Long,
			Quantity:          1,
			ExitTime:          now.Add(-time.Duration(i) * time.Hour),
			NetPnl:            pnl,
		})
	}
	sess.Status = types.SessionCompleted
	require.NoError(t, database.CompleteBacktestSession(ctx, sess, trades))
	require.NoError(t, database.SavePosition(ctx, &types.Position{
		ID: "p1", BotID: "b1", Symbol: "MES", Side: types.Long, Quantity: 3,
		EntryPrice: decimal.NewFromInt(5000), Stage: types.StageLive, OpenedAt: now,
	}))

	d, err := engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockSoft, d.Level)
	assert.Equal(t, "valueAtRisk", d.Gate)

	// With no open exposure the same history estimates to zero.
	require.NoError(t, database.DeletePosition(ctx, "p1"))
	d, err = engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockNone, d.Level)
}

func TestCheckOpen_OverrideLoosensLimit(t *testing.T) {
	database, engine := setupEngine(t)
	ctx := context.Background()

	// 16% drawdown soft-blocks by default.
	seedRiskBot(t, database, "b1", types.StageLive)
	seedAccount(t, database, "b1", 8_400, 10_000, 8_400, 0)

	d, err := engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockSoft, d.Level)

	// A bot-scoped override lifts the soft threshold past the drawdown;
	// the warning tier still fires.
	err = engine.GrantOverride(ctx, &audit.RiskOverride{
		OverrideID: "o1",
		Scope:      OverrideScopeBot("b1"),
		Parameter:  ParamDrawdownSoft,
		Value:      25,
		Reason:     "recovery plan approved",
		GrantedBy:  "ops",
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	d, err = engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockWarning, d.Level)
	assert.Equal(t, true, d.Level.AllowsOpen())

	// Revoking the grant restores the configured threshold.
	require.NoError(t, engine.RevokeOverride(ctx, "o1", "plan rescinded", "ops"))
	d, err = engine.CheckOpen(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, BlockSoft, d.Level)
}

func TestResolveLimit_ScopePrecedence(t *testing.T) {
	overrides := []*audit.RiskOverride{
		{Parameter: ParamDrawdownHard, Scope: OverrideScopeGlobal, Value: 22},
		{Parameter: ParamDrawdownHard, Scope: OverrideScopeBot("b1"), Value: 28},
		{Parameter: ParamDailyLossHard, Scope: OverrideScopeGlobal, Value: 7},
	}
	assert.Equal(t, 28.0, resolveLimit(overrides, ParamDrawdownHard, "b1", 20))
	assert.Equal(t, 22.0, resolveLimit(overrides, ParamDrawdownHard, "b2", 20))
	assert.Equal(t, 7.0, resolveLimit(overrides, ParamDailyLossHard, "b1", 5))
	assert.Equal(t, 5.0, resolveLimit(nil, ParamDailyLossHard, "b1", 5))
}
