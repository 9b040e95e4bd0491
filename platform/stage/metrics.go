package stage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_transitions_total",
		Help: "Executed stage transitions by source and target stage.",
	}, []string{"from", "to"})
	governanceDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_decisions_total",
		Help: "Governance approval rows by lifecycle outcome.",
	}, []string{"outcome"})
	assessmentErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stage_assessment_errors_total",
		Help: "Bot assessments that failed and were skipped for the cycle.",
	})
)
