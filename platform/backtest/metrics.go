package backtest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backtestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_duration_seconds",
		Help:    "Wall time of one backtest run, pipeline through persistence.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})
	backtestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_failures_total",
		Help: "Failed backtest sessions by classification code.",
	}, []string{"code"})
	backtestTradesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_trades_total",
		Help: "Simulated trades produced by completed backtests.",
	})
	backtestVarianceAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_variance_alerts_total",
		Help: "Replayed sessions whose net PnL drifted beyond the variance alert threshold.",
	})
)
