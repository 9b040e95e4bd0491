package stage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	dbtest "github.com/gauntletlabs/gauntlet/platform/db/testing"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

// seedBot writes a bot and, when metrics are given, a current generation
// carrying them as the performance snapshot.
func seedBot(t *testing.T, database iface.Database, id string, stage types.Stage, m *types.BaselineMetrics) *types.Bot {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	bot := &types.Bot{
		ID:             id,
		Name:           "MES Breakout " + id,
		Symbol:         "MES",
		Stage:          stage,
		SessionMode:    types.SessionRTH,
		StageEnteredAt: now.Add(-10 * 24 * time.Hour),
		CreatedAt:      now.Add(-30 * 24 * time.Hour),
		UpdatedAt:      now,
	}
	if m != nil {
		gen := &types.Generation{
			ID:                  id + "-g1",
			BotID:               id,
			Number:              1,
			StrategyConfig:      types.Config{},
			BaselineValid:       true,
			PerformanceSnapshot: m,
			CreatedAt:           now,
		}
		require.NoError(t, database.SaveGeneration(ctx, gen))
		bot.CurrentGenerationID = gen.ID
	}
	require.NoError(t, database.SaveBot(ctx, bot))
	return bot
}

func TestAssessBot_PromotesPaperToShadow(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StagePaper, fullMetrics(25, 47, 1.3, 0.9, 8))

	change, err := engine.AssessBot(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, types.StagePaper, change.FromStage)
	assert.Equal(t, types.StageShadow, change.ToStage)
	assert.Equal(t, "promotion gates passed", change.Reason)
	require.NotNil(t, change.MetricsSnapshot)
	assert.Equal(t, 25, change.MetricsSnapshot.TotalTrades)

	bot, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StageShadow, bot.Stage)
	assert.Equal(t, false, bot.StageEnteredAt.IsZero())

	history, err := database.StageChanges(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, len(history))

	entry, err := database.LatestAuditEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.EventPromoted, entry.EventType)
	assert.Equal(t, "b1", entry.EntityID)
}

func TestAssessBot_DemotionWinsOverPromotion(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	// Healthy profit factor but drawdown past the live trigger.
	seedBot(t, database, "b1", types.StageLive, fullMetrics(120, 55, 1.6, 1.2, 25))

	change, err := engine.AssessBot(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, types.StageLive, change.FromStage)
	assert.Equal(t, types.StageCanary, change.ToStage)

	entry, err := database.LatestAuditEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.EventDemoted, entry.EventType)
}

func TestAssessBot_SkipRules(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()
	demotable := fullMetrics(120, 55, 1.6, 1.2, 25)

	locked := seedBot(t, database, "locked", types.StageLive, demotable)
	locked.StageLockedUntil = time.Now().UTC().Add(time.Hour)
	require.NoError(t, database.SaveBot(ctx, locked))

	archived := seedBot(t, database, "archived", types.StageLive, demotable)
	archived.Archived = true
	require.NoError(t, database.SaveBot(ctx, archived))

	seedBot(t, database, "killed", types.StageKilled, demotable)

	for _, id := range []string{"locked", "archived", "killed"} {
		change, err := engine.AssessBot(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, (*types.StageChange)(nil), change, id)
	}

	bot, err := database.Bot(ctx, "locked")
	require.NoError(t, err)
	assert.Equal(t, types.StageLive, bot.Stage, "locked bot must hold its stage")
}

func TestAssessBot_ManualPromotionMode(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	// Promotable by the gates, but the operator owns promotions.
	manual := seedBot(t, database, "manual", types.StagePaper, fullMetrics(25, 47, 1.3, 0.9, 8))
	manual.ManualPromotion = true
	require.NoError(t, database.SaveBot(ctx, manual))

	change, err := engine.AssessBot(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, (*types.StageChange)(nil), change)

	// Demotion is never manual.
	sinking := seedBot(t, database, "sinking", types.StageLive, fullMetrics(120, 55, 0.8, 1.2, 5))
	sinking.ManualPromotion = true
	require.NoError(t, database.SaveBot(ctx, sinking))

	change, err = engine.AssessBot(ctx, "sinking")
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, types.StageCanary, change.ToStage)
}

func TestAssessBot_TrialsNeedsScores(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	bot := seedBot(t, database, "b1", types.StageTrials, fullMetrics(15, 50, 1.5, 1.0, 5))
	change, err := engine.AssessBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, (*types.StageChange)(nil), change)

	bot.ConfidenceScore = fptr(70)
	bot.UniquenessScore = fptr(45)
	require.NoError(t, database.SaveBot(ctx, bot))

	change, err = engine.AssessBot(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, types.StagePaper, change.ToStage)
}

func TestAssessBot_CanaryNeverAutoPromotes(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))

	change, err := engine.AssessBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, (*types.StageChange)(nil), change)

	bot, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StageCanary, bot.Stage)
}

func TestAssessBot_CanaryLosingDaysDemotes(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))
	sess := &types.BacktestSession{ID: "s1", BotID: "b1", Status: types.SessionCompleted}
	trades := []*types.TradeLog{
		tradeOn(2024, time.March, 5, -50),
		tradeOn(2024, time.March, 6, -20),
		tradeOn(2024, time.March, 7, -10),
	}
	for i, tr := range trades {
		tr.ID = fmt.Sprintf("%s-t%04d", sess.ID, i)
		tr.BacktestSessionID = sess.ID
		tr.BotID = "b1"
	}
	require.NoError(t, database.CompleteBacktestSession(ctx, sess, trades))

	change, err := engine.AssessBot(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, types.StageShadow, change.ToStage)
}

func TestExecuteApproved_RejectsStaleRequest(t *testing.T) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	ctx := context.Background()

	bot := seedBot(t, database, "b1", types.StageShadow, fullMetrics(80, 55, 1.6, 1.2, 8))
	a := &types.GovernanceApproval{
		ID:        "a1",
		BotID:     bot.ID,
		FromStage: types.StageCanary,
		ToStage:   types.StageLive,
	}
	_, err := engine.ExecuteApproved(ctx, a)
	assert.ErrorContains(t, "moved to SHADOW", err)

	got, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StageShadow, got.Stage)
}
