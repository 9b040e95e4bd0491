/*
Package features defines which optional behaviors are enabled at runtime,
in order to selectively enable certain features to maintain a stable runtime.

The process for implementing new features using this package is as follows:
	1. Add a new CMD flag in flags.go and place it in PlatformFlags.
	2. Add a condition for the flag in ConfigurePlatform below.
	3. Place any "new" behavior in the `if flagEnabled` statement.
	4. Ensure any tests using the new feature fail if the flag isn't enabled.
	4a. Use the following to enable your flag for tests:
	cfg := &features.Flags{
		AllowSimFallback: true,
	}
	resetCfg := features.InitWithReset(cfg)
	defer resetCfg()
*/
package features

import (
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "flags")

// Flags is a struct to represent which features the platform will perform on runtime.
type Flags struct {
	AllowSimFallback        bool // AllowSimFallback permits the seeded simulated bar provider when no upstream market data provider is configured. TRIALS stage only.
	FixEnabled              bool // FixEnabled activates FIX gateway sessions on the broker adapter instead of the native HTTP API.
	DisableBarCacheLocks    bool // DisableBarCacheLocks bypasses distributed fetch locks in the bar cache. Every caller fetches upstream directly. UNSAFE under load, use with caution.
	DisableFleetSelfHealing bool // DisableFleetSelfHealing keeps fleet risk restrictions in place until an operator clears them manually.
}

var featureConfig *Flags

// Get retrieves feature config.
func Get() *Flags {
	if featureConfig == nil {
		return &Flags{}
	}
	return featureConfig
}

// Init sets the global config equal to the config that is passed in.
func Init(c *Flags) {
	featureConfig = c
}

// InitWithReset sets the global config and returns function that is used to reset configuration.
func InitWithReset(c *Flags) func() {
	resetFunc := func() {
		Init(&Flags{})
	}
	Init(c)
	return resetFunc
}

// ConfigurePlatform sets the global config based on what flags are enabled
// for the platform node.
func ConfigurePlatform(ctx *cli.Context) {
	complainOnDeprecatedFlags(ctx)
	cfg := &Flags{}
	if ctx.Bool(minimalConfigFlag.Name) {
		log.Warn("Using minimal config")
		params.UseMinimalConfig()
	}
	if ctx.Bool(allowSimFallbackFlag.Name) {
		log.Warn("Enabled simulated bar fallback for TRIALS runs")
		cfg.AllowSimFallback = true
	}
	if ctx.Bool(enableFixGatewayFlag.Name) {
		log.Warn("Enabled FIX gateway sessions")
		cfg.FixEnabled = true
	}
	if ctx.Bool(disableBarCacheLocksFlag.Name) {
		log.Warn("Disabled bar cache fetch locks")
		cfg.DisableBarCacheLocks = true
	}
	if ctx.Bool(disableFleetSelfHealingFlag.Name) {
		log.Warn("Disabled fleet risk self-healing")
		cfg.DisableFleetSelfHealing = true
	}
	Init(cfg)
}
