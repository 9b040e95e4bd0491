package evolution

import (
	"fmt"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// Priority ranks how urgently a bot needs a new generation. Skip means the
// evidence is too thin to judge; None means the current generation performs
// and should be left alone.
type Priority string

// Evolution priorities.
const (
	PrioritySkip   Priority = "SKIP"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
	PriorityNone   Priority = "NONE"
)

var priorityRank = map[Priority]int{
	PriorityNone:   0,
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
}

// Decision is the outcome of judging a generation's metrics.
type Decision struct {
	Priority Priority `json:"priority"`
	Fitness  float64  `json:"fitness"`
	Reasons  []string `json:"reasons,omitempty"`
}

func (d *Decision) raise(p Priority, reason string) {
	if priorityRank[p] > priorityRank[d.Priority] {
		d.Priority = p
	}
	d.Reasons = append(d.Reasons, reason)
}

// Decide ranks a metrics snapshot on the evolution ladder. Losing money in
// any form is HIGH; a thin edge is MEDIUM; a weak composite score is LOW.
// Every tripped rule lands in Reasons even when a higher rule set the
// priority, so the audit trail shows the full picture.
func Decide(m *types.BaselineMetrics) Decision {
	minTrades := params.Platform().EvolutionMinTrades
	if m == nil || m.TotalTrades < minTrades {
		trades := 0
		if m != nil {
			trades = m.TotalTrades
		}
		return Decision{
			Priority: PrioritySkip,
			Reasons:  []string{fmt.Sprintf("%d trades is below the %d needed to judge a generation", trades, minTrades)},
		}
	}

	d := Decision{Fitness: Fitness(m)}
	if s := deref(m.Sharpe); s < 0 {
		d.raise(PriorityHigh, fmt.Sprintf("sharpe %.2f is negative", s))
	} else if s < 0.5 {
		d.raise(PriorityMedium, fmt.Sprintf("sharpe %.2f is below 0.5", s))
	}
	if dd := deref(m.MaxDrawdownPct); dd > 15 {
		d.raise(PriorityHigh, fmt.Sprintf("max drawdown %.1f%% exceeds 15%%", dd))
	}
	if pf := deref(m.ProfitFactor); pf < 1 {
		d.raise(PriorityHigh, fmt.Sprintf("profit factor %.2f is below break-even", pf))
	}
	if wr := deref(m.WinRate); wr < 35 {
		d.raise(PriorityMedium, fmt.Sprintf("win rate %.1f%% is below 35%%", wr))
	}
	if d.Fitness < 0.4 {
		d.raise(PriorityLow, fmt.Sprintf("composite fitness %.2f is below 0.40", d.Fitness))
	}
	if d.Priority == "" {
		d.Priority = PriorityNone
	}
	return d
}
