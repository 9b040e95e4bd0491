package strategy

import "github.com/gauntletlabs/gauntlet/platform/types"

// ExecutionProfile carries the per-run evaluation switches. It is threaded
// as a parameter through every rule evaluator so concurrent backtests in one
// process can run different profiles without sharing mutable state.
type ExecutionProfile struct {
	Profile types.RulesProfile

	// TRIALS relaxations. All four are on under TRIALS_RELAXED and off
	// everywhere else; leakage into PAPER and above is a defect.
	WiderRSIBands     bool
	SkipVolumeConfirm bool
	LowerThresholds   bool
	RelaxedEntry      bool

	// SessionBypass disables the session and no-trade-window filters
	// entirely. Set for FULL_24x5 bots.
	SessionBypass bool
}

// ProductionProfile is the strict profile every stage above TRIALS runs.
func ProductionProfile() ExecutionProfile {
	return ExecutionProfile{Profile: types.ProfileProduction}
}

// TrialsProfile is the relaxed profile new TRIALS bots run, loosening entry
// thresholds so young strategies generate enough trades to be measurable.
func TrialsProfile() ExecutionProfile {
	return ExecutionProfile{
		Profile:           types.ProfileTrialsRelaxed,
		WiderRSIBands:     true,
		SkipVolumeConfirm: true,
		LowerThresholds:   true,
		RelaxedEntry:      true,
	}
}

// ProfileForStage selects the profile a backtest runs under. Only TRIALS is
// relaxed.
func ProfileForStage(stage types.Stage) ExecutionProfile {
	if stage == types.StageTrials {
		return TrialsProfile()
	}
	return ProductionProfile()
}

// RelaxedFlags returns the flag names recorded on the session row, empty for
// the production profile.
func (p ExecutionProfile) RelaxedFlags() []string {
	if p.Profile != types.ProfileTrialsRelaxed {
		return nil
	}
	return types.TrialsRelaxFlags()
}

// thresholdScale is the multiplier applied to breakout, gap, deviation, and
// momentum thresholds under LOWER_THRESHOLDS.
const thresholdScale = 0.5

// rsiBandWiden is how far each RSI band moves toward 50 under
// WIDER_RSI_BANDS: oversold 30 becomes 40, overbought 70 becomes 60.
const rsiBandWiden = 10.0

// scaleThreshold applies the LOWER_THRESHOLDS relaxation to a threshold.
func (p ExecutionProfile) scaleThreshold(v float64) float64 {
	if p.LowerThresholds {
		return v * thresholdScale
	}
	return v
}

// rsiBands returns the effective oversold and overbought levels.
func (p ExecutionProfile) rsiBands(oversold, overbought float64) (float64, float64) {
	if p.WiderRSIBands {
		return oversold + rsiBandWiden, overbought - rsiBandWiden
	}
	return oversold, overbought
}
