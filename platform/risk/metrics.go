package risk

import (
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gateBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_gate_blocks_total",
		Help: "Position opens denied by per-bot risk gates.",
	}, []string{"gate", "level"})
	blownAccounts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blown_accounts_total",
		Help: "Accounts declared blown, each killing its bot.",
	})
	tierTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_tier_transitions_total",
		Help: "Kill-switch tier changes, escalations and healing steps alike.",
	}, []string{"from", "to"})
	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_violations_total",
		Help: "Fleet limit violations observed per assessment cycle.",
	}, []string{"rule"})
	fleetAssessFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_assessment_failures_total",
		Help: "Fleet risk cycles that failed before publishing state.",
	})

	fleetTier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_kill_switch_tier",
		Help: "Current kill-switch tier: 0 NORMAL through 3 EMERGENCY.",
	})
	fleetGrossContracts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_gross_contracts",
		Help: "Total open contracts across the fleet, long plus short.",
	})
	fleetNetContracts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_net_contracts",
		Help: "Net directional contracts across the fleet.",
	})
	fleetNotional = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_notional_dollars",
		Help: "Dollar notional of all open positions.",
	})
	fleetHHI = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_concentration_hhi",
		Help: "Herfindahl concentration of notional across symbols.",
	})
	fleetDailyPnl = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_daily_pnl_dollars",
		Help: "Sum of today's realized PnL across accounts.",
	})
	fleetDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_drawdown_pct",
		Help: "Fleet drawdown from peak equity, percent.",
	})
)

func publishGauges(s *types.FleetRiskState) {
	fleetTier.Set(float64(s.Tier))
	fleetGrossContracts.Set(float64(s.Exposure.GrossContracts))
	fleetNetContracts.Set(float64(s.Exposure.NetContracts))
	notional, _ := s.Exposure.NotionalDollars.Float64()
	fleetNotional.Set(notional)
	fleetHHI.Set(s.ConcentrationHHI)
	pnl, _ := s.DailyPnl.Float64()
	fleetDailyPnl.Set(pnl)
	fleetDrawdown.Set(s.DrawdownPct)
}
