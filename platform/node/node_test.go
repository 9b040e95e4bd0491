package node

import (
	"flag"
	"strconv"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/flags"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/urfave/cli/v2"
)

func TestApplyConfigOverrides_ContractCaps(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.OverridePlatformConfig(params.MainnetConfig())

	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.Int(flags.MaxContractsTrialsFlag.Name, 0, "")
	set.Int(flags.MaxContractsLiveFlag.Name, 0, "")
	require.NoError(t, set.Set(flags.MaxContractsTrialsFlag.Name, "3"))
	require.NoError(t, set.Set(flags.MaxContractsLiveFlag.Name, "25"))
	cliCtx := cli.NewContext(&app, set, nil)

	applyConfigOverrides(cliCtx)

	cfg := params.Platform()
	assert.Equal(t, 3, cfg.MaxContractsTrials)
	assert.Equal(t, 25, cfg.MaxContractsLive)
	// Caps without an override keep their defaults.
	assert.Equal(t, params.MainnetConfig().MaxContractsPaper, cfg.MaxContractsPaper)
}

func TestApplyConfigOverrides_FleetInterval(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.OverridePlatformConfig(params.MainnetConfig())

	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.Int(flags.FleetRiskIntervalFlag.Name, 60000, "")
	require.NoError(t, set.Set(flags.FleetRiskIntervalFlag.Name, strconv.Itoa(1500)))
	cliCtx := cli.NewContext(&app, set, nil)

	applyConfigOverrides(cliCtx)

	assert.Equal(t, 1500*time.Millisecond, params.Platform().FleetCheckInterval)
}

func TestApplyConfigOverrides_NoFlagsLeavesConfigUntouched(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.OverridePlatformConfig(params.MainnetConfig())
	before := params.Platform()

	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	applyConfigOverrides(cli.NewContext(&app, set, nil))

	assert.Equal(t, before, params.Platform())
}
