// Package validators holds the fail-fast gatekeepers that screen bot
// configurations before they reach the stage engine or the backtest
// executor. Findings carry a SEV label for triage: SEV-0 blocks creation
// outright, SEV-1 blocks creation of non-TRIALS bots, SEV-2 only warns.
package validators

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/risk"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "validators")

// Sev grades a finding for human triage.
type Sev int

// Severity levels.
const (
	Sev0 Sev = iota // Blocks bot creation, promotion, and trading.
	Sev1            // Blocks creation of non-TRIALS bots.
	Sev2            // Warn only.
)

func (s Sev) String() string {
	return fmt.Sprintf("SEV-%d", int(s))
}

// Finding is one validation failure.
type Finding struct {
	Sev     Sev    `json:"sev"`
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result aggregates every finding for one candidate bot.
type Result struct {
	Findings []Finding `json:"findings"`
}

func (r *Result) add(sev Sev, code, field, format string, args ...interface{}) {
	r.Findings = append(r.Findings, Finding{Sev: sev, Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// OK reports whether the bot may be created at its requested stage. SEV-0
// findings always block; SEV-1 findings block everything above TRIALS.
func (r *Result) OK(stage types.Stage) bool {
	for _, f := range r.Findings {
		switch f.Sev {
		case Sev0:
			return false
		case Sev1:
			if stage != types.StageTrials {
				return false
			}
		}
	}
	return true
}

// Blockers returns the findings that deny creation at the given stage.
func (r *Result) Blockers(stage types.Stage) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Sev == Sev0 || (f.Sev == Sev1 && stage != types.StageTrials) {
			out = append(out, f)
		}
	}
	return out
}

var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidateBotCreation runs the composite creation screen: symbol,
// archetype, risk config, contract caps, and session mode. It never stops
// at the first failure; operators get the full slate at once.
func ValidateBotCreation(bot *types.Bot) *Result {
	res := &Result{}
	cfg := params.Platform()

	if strings.TrimSpace(bot.Name) == "" {
		res.add(Sev0, "MISSING_NAME", "name", "bot name is required")
	}

	if !instruments.IsSupported(bot.Symbol) {
		res.add(Sev0, "INSTRUMENT_NOT_SUPPORTED", "symbol",
			"symbol %q is not in the canonical registry", bot.Symbol)
	}

	if _, err := strategy.Resolve(bot); err != nil {
		res.add(Sev0, "ARCHETYPE_UNRESOLVED", "archetype", "%v", err)
	}

	validateRiskConfig(bot, cfg, res)
	validateSessionMode(bot, res)

	if len(res.Findings) > 0 {
		log.WithFields(logrus.Fields{
			"bot":      bot.Name,
			"findings": len(res.Findings),
		}).Warn("Bot creation validation raised findings")
	}
	return res
}

func validateRiskConfig(bot *types.Bot, cfg *params.PlatformConfig, res *Result) {
	if bot.RiskConfig == nil {
		res.add(Sev0, "MISSING_RISK_CONFIG", "riskConfig", "risk config is required")
		return
	}
	stop, ok := bot.RiskConfig[types.RiskKeyStopLossTicks]
	switch {
	case !ok:
		res.add(Sev0, "MISSING_STOP_LOSS", "riskConfig.stopLossTicks", "stopLossTicks is required")
	case stop <= 0:
		res.add(Sev0, "INVALID_STOP_LOSS", "riskConfig.stopLossTicks", "stopLossTicks must be positive, got %v", stop)
	}

	size, ok := bot.RiskConfig[types.RiskKeyMaxPositionSize]
	switch {
	case !ok:
		res.add(Sev0, "MISSING_POSITION_SIZE", "riskConfig.maxPositionSize", "maxPositionSize is required")
	case size <= 0:
		res.add(Sev0, "INVALID_POSITION_SIZE", "riskConfig.maxPositionSize", "maxPositionSize must be positive, got %v", size)
	default:
		cap := risk.ContractCapForStage(cfg, bot.Stage)
		if int(size) > cap {
			// Over-cap sizing is survivable in TRIALS, where nothing fills.
			res.add(Sev1, "POSITION_SIZE_OVER_CAP", "riskConfig.maxPositionSize",
				"maxPositionSize %v exceeds the %s cap of %d contracts", size, bot.Stage, cap)
		}
	}
}

func validateSessionMode(bot *types.Bot, res *Result) {
	mode, ok := types.ParseSessionMode(string(bot.SessionMode))
	if !ok {
		res.add(Sev0, "INVALID_SESSION_MODE", "sessionMode", "unknown session mode %q", bot.SessionMode)
		return
	}
	if mode != types.SessionCustom {
		if bot.SessionStart != "" || bot.SessionEnd != "" {
			res.add(Sev2, "IGNORED_SESSION_BOUNDS", "sessionStart",
				"session bounds are ignored outside CUSTOM mode")
		}
		return
	}
	if !hhmmRe.MatchString(bot.SessionStart) {
		res.add(Sev0, "INVALID_SESSION_START", "sessionStart", "CUSTOM mode needs HH:MM sessionStart, got %q", bot.SessionStart)
	}
	if !hhmmRe.MatchString(bot.SessionEnd) {
		res.add(Sev0, "INVALID_SESSION_END", "sessionEnd", "CUSTOM mode needs HH:MM sessionEnd, got %q", bot.SessionEnd)
	}
}
