package stage

import (
	"fmt"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// GateResult is one promotion gate check with its observed value.
type GateResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Evaluation is the outcome of assessing a bot against the promotion gate
// table for its current stage.
type Evaluation struct {
	From types.Stage
	To   types.Stage
	// Eligible is true when the hard stop and every gate passed. For the
	// guarded CANARY to LIVE edge it means a governance request may be filed.
	Eligible bool
	// RequiresApproval marks transitions that only move through dual control.
	RequiresApproval bool
	// HardStopReason is the SEV-0 rejection, checked before any gate.
	HardStopReason string
	Gates          []GateResult
}

// Lines renders the evaluation as the human-readable snapshot stored on
// governance requests and stage-change reasons.
func (e *Evaluation) Lines() []string {
	lines := make([]string, 0, len(e.Gates)+1)
	if e.HardStopReason != "" {
		lines = append(lines, "[SEV-0] "+e.HardStopReason)
	}
	for _, g := range e.Gates {
		verdict := "FAIL"
		if g.Passed {
			verdict = "PASS"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", verdict, g.Name, g.Detail))
	}
	return lines
}

// hardStop applies the SEV-0 screen that runs before gate evaluation: the
// core metrics must all be present and the trade sample must clear the
// floor for the target stage. A missing expectancy is only a warning.
func hardStop(cfg *params.PlatformConfig, to types.Stage, m *types.BaselineMetrics) string {
	if m == nil {
		return "no performance metrics recorded"
	}
	switch {
	case m.Sharpe == nil:
		return "sharpe is null"
	case m.MaxDrawdownPct == nil:
		return "maxDrawdownPct is null"
	case m.WinRate == nil:
		return "winRate is null"
	case m.ProfitFactor == nil:
		return "profitFactor is null"
	}
	floor := cfg.EvaluationMinTrades
	if to == types.StageLive {
		floor = cfg.LiveEvaluationTrades
	}
	if m.TotalTrades < floor {
		return fmt.Sprintf("totalTrades %d below evaluation floor %d", m.TotalTrades, floor)
	}
	if m.Expectancy == nil {
		log.Warn("Metrics snapshot carries no expectancy")
	}
	return ""
}

// EvaluatePromotion assesses a bot for advancing one stage up the ladder.
// Returns nil when the stage has no promotion (top of ladder, or KILLED).
func EvaluatePromotion(bot *types.Bot, m *types.BaselineMetrics, now time.Time) *Evaluation {
	next, ok := bot.Stage.Next()
	if !ok {
		return nil
	}
	cfg := params.Platform()
	eval := &Evaluation{From: bot.Stage, To: next}
	eval.HardStopReason = hardStop(cfg, next, m)

	var winRate, profitFactor, sharpe, maxDD *float64
	trades := 0
	if m != nil {
		winRate, profitFactor, sharpe, maxDD = m.WinRate, m.ProfitFactor, m.Sharpe, m.MaxDrawdownPct
		trades = m.TotalTrades
	}
	switch bot.Stage {
	case types.StageTrials:
		eval.Gates = append(eval.Gates,
			minGate("confidenceScore", bot.ConfidenceScore, cfg.TrialsPromoteConfidence, ""),
			minGate("uniquenessScore", bot.UniquenessScore, cfg.TrialsPromoteUniqueness, ""),
		)
	case types.StagePaper:
		eval.Gates = append(eval.Gates,
			minGate("winRate", winRate, cfg.PaperPromoteWinRate, "%"),
			minGate("profitFactor", profitFactor, cfg.PaperPromoteProfit, ""),
			intGate("totalTrades", trades, cfg.PaperPromoteTrades),
		)
	case types.StageShadow:
		eval.Gates = append(eval.Gates,
			minGate("winRate", winRate, cfg.ShadowPromoteWinRate, "%"),
			minGate("profitFactor", profitFactor, cfg.ShadowPromoteProfit, ""),
			minGate("sharpe", sharpe, cfg.ShadowPromoteSharpe, ""),
			maxGate("maxDrawdownPct", maxDD, cfg.ShadowPromoteMaxDD, "%"),
			intGate("daysInStage", bot.DaysInStage(now), cfg.ShadowPromoteDays),
		)
	case types.StageCanary:
		// No automatic gate. The edge into live capital moves only through
		// an approved governance request; the SEV-0 screen still applies at
		// request time.
		eval.RequiresApproval = true
	}

	eval.Eligible = eval.HardStopReason == ""
	for _, g := range eval.Gates {
		eval.Eligible = eval.Eligible && g.Passed
	}
	return eval
}

// EvaluateDemotion checks the any-of demotion triggers for the bot's stage.
// losingDays is the consecutive losing-day count, consulted only at CANARY.
// A missing metric never fires a trigger.
func EvaluateDemotion(bot *types.Bot, m *types.BaselineMetrics, losingDays int) (types.Stage, string, bool) {
	cfg := params.Platform()
	switch bot.Stage {
	case types.StageLive:
		if m != nil && m.MaxDrawdownPct != nil && *m.MaxDrawdownPct > cfg.LiveDemoteDrawdown {
			return types.StageCanary,
				fmt.Sprintf("maxDrawdownPct %.1f%% above %.0f%%", *m.MaxDrawdownPct, cfg.LiveDemoteDrawdown), true
		}
		if m != nil && m.ProfitFactor != nil && *m.ProfitFactor < cfg.LiveDemoteProfit {
			return types.StageCanary,
				fmt.Sprintf("profitFactor %.2f below %.1f", *m.ProfitFactor, cfg.LiveDemoteProfit), true
		}
	case types.StageCanary:
		if m != nil && m.Sharpe != nil && *m.Sharpe < cfg.CanaryDemoteSharpe {
			return types.StageShadow,
				fmt.Sprintf("sharpe %.2f below %.1f", *m.Sharpe, cfg.CanaryDemoteSharpe), true
		}
		if losingDays >= cfg.CanaryDemoteLossDays {
			return types.StageShadow,
				fmt.Sprintf("%d consecutive losing days reached the limit of %d", losingDays, cfg.CanaryDemoteLossDays), true
		}
	case types.StageShadow:
		if m != nil && m.WinRate != nil && *m.WinRate < cfg.ShadowDemoteWinRate {
			return types.StagePaper,
				fmt.Sprintf("winRate %.1f%% below %.0f%%", *m.WinRate, cfg.ShadowDemoteWinRate), true
		}
	}
	return "", "", false
}

func minGate(name string, v *float64, min float64, unit string) GateResult {
	if v == nil {
		return GateResult{Name: name, Detail: "not recorded"}
	}
	return GateResult{
		Name:   name,
		Passed: *v >= min,
		Detail: fmt.Sprintf("%.2f%s (need >= %v%s)", *v, unit, min, unit),
	}
}

func maxGate(name string, v *float64, max float64, unit string) GateResult {
	if v == nil {
		return GateResult{Name: name, Detail: "not recorded"}
	}
	return GateResult{
		Name:   name,
		Passed: *v <= max,
		Detail: fmt.Sprintf("%.2f%s (need <= %v%s)", *v, unit, max, unit),
	}
}

func intGate(name string, v, min int) GateResult {
	return GateResult{
		Name:   name,
		Passed: v >= min,
		Detail: fmt.Sprintf("%d (need >= %d)", v, min),
	}
}
