package regime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	regimeDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regime_detections_total",
		Help: "Completed regime classifications by unified label.",
	}, []string{"regime"})
	researchBursts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regime_research_bursts_total",
		Help: "Regime changes that cleared the burst-research cooldown.",
	})
)
