package features

import (
	"github.com/urfave/cli/v2"
)

var (
	minimalConfigFlag = &cli.BoolFlag{
		Name:  "minimal-config",
		Usage: "Use minimal config with shortened cache, sweeper, and breaker durations. For local development only.",
	}
	allowSimFallbackFlag = &cli.BoolFlag{
		Name:    "allow-sim-fallback",
		Usage:   "Allow TRIALS backtests to fall back to the seeded simulated bar provider when no market data provider is configured.",
		EnvVars: []string{"ALLOW_SIM_FALLBACK"},
	}
	enableFixGatewayFlag = &cli.BoolFlag{
		Name:    "enable-fix-gateway",
		Usage:   "Route broker order flow through FIX gateway sessions instead of the native HTTP API.",
		EnvVars: []string{"FIX_ENABLED"},
	}
	disableBarCacheLocksFlag = &cli.BoolFlag{
		Name:  "disable-bar-cache-locks",
		Usage: "Bypass distributed fetch locks in the bar cache so every caller fetches upstream directly. UNSAFE under load, use with caution.",
	}
	disableFleetSelfHealingFlag = &cli.BoolFlag{
		Name:  "disable-fleet-self-healing",
		Usage: "Keep fleet risk restrictions in place until cleared manually, instead of easing one tier per healthy cycle.",
	}
)

// deprecatedStampedeProtectionFlag is on by default and kept only so old
// service files do not fail to start.
var deprecatedStampedeProtectionFlag = &cli.BoolFlag{
	Name:   "enable-stampede-protection",
	Usage:  deprecatedUsage,
	Hidden: true,
}

const deprecatedUsage = "DEPRECATED. DO NOT USE."

var deprecatedFlags = []cli.Flag{
	deprecatedStampedeProtectionFlag,
}

// PlatformFlags contains a list of all the feature flags that apply to the platform node.
var PlatformFlags = append(deprecatedFlags, []cli.Flag{
	minimalConfigFlag,
	allowSimFallbackFlag,
	enableFixGatewayFlag,
	disableBarCacheLocksFlag,
	disableFleetSelfHealingFlag,
}...)

func complainOnDeprecatedFlags(ctx *cli.Context) {
	for _, f := range deprecatedFlags {
		if ctx.IsSet(f.Names()[0]) {
			log.Errorf("%s is deprecated and has no effect. Do not use this flag, it will be deleted soon.", f.Names()[0])
		}
	}
}
