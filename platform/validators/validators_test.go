package validators

import (
	"testing"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

func validBot() *types.Bot {
	return &types.Bot{
		ID:     "b1",
		Name:   "MNQ Gap Fade",
		Symbol: "MNQ",
		Stage:  types.StageTrials,
		RiskConfig: map[string]float64{
			types.RiskKeyStopLossTicks:   8,
			types.RiskKeyMaxPositionSize: 1,
		},
		SessionMode: types.SessionRTH,
	}
}

func TestValidateBotCreation_CleanBotPasses(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	res := ValidateBotCreation(validBot())
	assert.Equal(t, 0, len(res.Findings))
	assert.Equal(t, true, res.OK(types.StageTrials))
}

func TestValidateBotCreation_AggregatesAllFindings(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bot := validBot()
	bot.Symbol = "BTC"
	bot.Name = "Zephyr Strategy 42"
	bot.RiskConfig = map[string]float64{}

	res := ValidateBotCreation(bot)
	require.Equal(t, false, res.OK(types.StageTrials))

	codes := map[string]bool{}
	for _, f := range res.Findings {
		codes[f.Code] = true
		assert.Equal(t, Sev0, f.Sev)
	}
	assert.Equal(t, true, codes["INSTRUMENT_NOT_SUPPORTED"])
	assert.Equal(t, true, codes["ARCHETYPE_UNRESOLVED"])
	assert.Equal(t, true, codes["MISSING_STOP_LOSS"])
	assert.Equal(t, true, codes["MISSING_POSITION_SIZE"])
}

func TestValidateBotCreation_Sev1BlocksOnlyAboveTrials(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bot := validBot()
	bot.RiskConfig[types.RiskKeyMaxPositionSize] = 500

	res := ValidateBotCreation(bot)
	require.Equal(t, 1, len(res.Findings))
	assert.Equal(t, Sev1, res.Findings[0].Sev)
	assert.Equal(t, "POSITION_SIZE_OVER_CAP", res.Findings[0].Code)

	assert.Equal(t, true, res.OK(types.StageTrials), "SEV-1 does not block TRIALS creation")
	assert.Equal(t, false, res.OK(types.StagePaper), "SEV-1 blocks non-TRIALS creation")
	assert.Equal(t, 0, len(res.Blockers(types.StageTrials)))
	assert.Equal(t, 1, len(res.Blockers(types.StagePaper)))
}

func TestValidateBotCreation_CustomSessionNeedsBounds(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bot := validBot()
	bot.SessionMode = types.SessionCustom
	bot.SessionStart = "9:30" // Needs the leading zero.
	bot.SessionEnd = "15:55"

	res := ValidateBotCreation(bot)
	require.Equal(t, 1, len(res.Findings))
	assert.Equal(t, "INVALID_SESSION_START", res.Findings[0].Code)
	assert.Equal(t, Sev0, res.Findings[0].Sev)
}

func TestValidateBotCreation_Sev2WarnsOnly(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	bot := validBot()
	bot.SessionStart = "09:30" // Ignored outside CUSTOM mode.

	res := ValidateBotCreation(bot)
	require.Equal(t, 1, len(res.Findings))
	assert.Equal(t, Sev2, res.Findings[0].Sev)
	assert.Equal(t, true, res.OK(types.StagePaper))
}
