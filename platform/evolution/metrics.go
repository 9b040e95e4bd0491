package evolution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evolutionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evolution_decisions_total",
		Help: "Evolution decisions by priority, including skips.",
	}, []string{"priority"})
	generationsEvolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generations_evolved_total",
		Help: "New generations bred, by mutation type.",
	}, []string{"mutation"})
	crossoverOffspring = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossover_offspring_total",
		Help: "Generations bred by crossing two parent bots.",
	})
)
