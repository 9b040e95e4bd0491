package strategy

import (
	"testing"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

func testBot(archetype string) *types.Bot {
	return &types.Bot{
		ID:             "bot-1",
		Name:           "test bot",
		Symbol:         "MES",
		Stage:          types.StageTrials,
		ArchetypeID:    archetype,
		SessionMode:    types.SessionRTH,
		StrategyConfig: types.Config{},
		RiskConfig: map[string]float64{
			types.RiskKeyStopLossTicks:   12,
			types.RiskKeyMaxPositionSize: 2,
		},
	}
}

func TestBuild_DefaultsAndOverrides(t *testing.T) {
	arch, ok := ByID("breakout")
	require.Equal(t, true, ok)

	bot := testBot("breakout")
	r, err := Build(arch, bot)
	require.NoError(t, err)
	assert.Equal(t, RulesVersion, r.Version)
	assert.Equal(t, "breakout", r.Archetype)
	assert.Equal(t, Breakout, r.Entry.Type)
	assert.Equal(t, 20, r.Entry.LookbackBars)
	assert.Equal(t, 4.0, r.Entry.BreakoutThresholdTicks)
	assert.Equal(t, 12.0, r.Exits.StopLossTicks)
	assert.Equal(t, 24.0, r.Exits.TakeProfitTicks, "default target is twice the stop")
	assert.Equal(t, 2, r.Risk.MaxPositionSize)
	assert.Equal(t, 1.0, r.Risk.SlippageTicks)
	assert.Equal(t, "09:30", r.Session.RTHStart)
	assert.Equal(t, "16:15", r.Session.RTHEnd)
	assert.Equal(t, true, r.Exits.Trailing == nil, "no trailing stop unless configured")

	bot.StrategyConfig = types.Config{
		"lookbackBars":            float64(40),
		"breakoutThresholdTicks":  6.0,
		"takeProfitTicks":         30.0,
		"trailingActivationTicks": 10.0,
		"trailingDistanceTicks":   5.0,
		"timeStopBars":            float64(24),
	}
	r, err = Build(arch, bot)
	require.NoError(t, err)
	assert.Equal(t, 40, r.Entry.LookbackBars)
	assert.Equal(t, 6.0, r.Entry.BreakoutThresholdTicks)
	assert.Equal(t, 30.0, r.Exits.TakeProfitTicks)
	assert.Equal(t, 24, r.Exits.TimeStopBars)
	require.NotNil(t, r.Exits.Trailing)
	assert.Equal(t, 10.0, r.Exits.Trailing.ActivationTicks)
	assert.Equal(t, 5.0, r.Exits.Trailing.TrailTicks)
}

func TestBuild_RequiresRiskConfig(t *testing.T) {
	arch, _ := ByID("breakout")

	bot := testBot("breakout")
	delete(bot.RiskConfig, types.RiskKeyStopLossTicks)
	_, err := Build(arch, bot)
	require.NotNil(t, err)
	assert.Equal(t, errclass.InvalidStrategy, errclass.CodeOf(err))

	bot = testBot("breakout")
	delete(bot.RiskConfig, types.RiskKeyMaxPositionSize)
	_, err = Build(arch, bot)
	require.NotNil(t, err)
	assert.Equal(t, errclass.InvalidStrategy, errclass.CodeOf(err))
}

func TestBuild_CustomSessionRequiresClock(t *testing.T) {
	arch, _ := ByID("breakout")
	bot := testBot("breakout")
	bot.SessionMode = types.SessionCustom
	_, err := Build(arch, bot)
	require.NotNil(t, err)
	assert.Equal(t, errclass.InvalidStrategy, errclass.CodeOf(err))

	bot.SessionStart, bot.SessionEnd = "10:00", "14:30"
	r, err := Build(arch, bot)
	require.NoError(t, err)
	assert.Equal(t, "10:00", r.Session.RTHStart)
	assert.Equal(t, "14:30", r.Session.RTHEnd)

	bot.SessionStart = "25:99"
	_, err = Build(arch, bot)
	require.NotNil(t, err)
	assert.Equal(t, errclass.InvalidStrategy, errclass.CodeOf(err))
}

func TestBuild_HashDeterministic(t *testing.T) {
	arch, _ := ByID("mean_reversion")
	bot := testBot("mean_reversion")

	r1, err := Build(arch, bot)
	require.NoError(t, err)
	r2, err := Build(arch, bot)
	require.NoError(t, err)

	h1, err := r1.Hash()
	require.NoError(t, err)
	h2, err := r2.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "same inputs must hash identically")
	assert.Equal(t, 64, len(h1))

	bot.StrategyConfig["rsiOversold"] = 25.0
	r3, err := Build(arch, bot)
	require.NoError(t, err)
	h3, err := r3.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "changed parameter must change the hash")
}

func TestBuild_ProvenanceAgreesForWholeCatalog(t *testing.T) {
	for _, id := range Catalog() {
		arch, ok := ByID(id)
		require.Equal(t, true, ok)
		bot := testBot(id)
		r, err := Build(arch, bot)
		require.NoError(t, err, "archetype %s", id)
		assert.Equal(t, arch.EntryCondition, r.ActualEntryCondition(),
			"built rules for %s must evaluate the catalog's entry condition", id)
		assert.NotEqual(t, "", r.Summary())
	}
}

func TestBuild_ETHSessionWraps(t *testing.T) {
	arch, _ := ByID("trend_continuation")
	bot := testBot("trend_continuation")
	bot.SessionMode = types.SessionETH
	r, err := Build(arch, bot)
	require.NoError(t, err)
	assert.Equal(t, "18:00", r.Session.RTHStart)
	assert.Equal(t, "09:30", r.Session.RTHEnd)
}

func TestWiden_RecordsOriginalOnce(t *testing.T) {
	s := SessionRules{TradingDays: weekdaysMonFri(), RTHStart: "09:30", RTHEnd: "16:15"}
	s.Widen("09:35", "15:55")
	assert.Equal(t, "09:35", s.RTHStart)
	assert.Equal(t, "15:55", s.RTHEnd)
	assert.Equal(t, "09:30", s.OriginalStart)
	assert.Equal(t, "16:15", s.OriginalEnd)

	s.Widen("09:40", "15:50")
	assert.Equal(t, "09:30", s.OriginalStart, "first original survives repeated widening")
}
