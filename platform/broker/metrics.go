package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_orders_total",
		Help: "Order submissions and cancels by outcome.",
	}, []string{"op", "status"})
	guardFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_guard_failures_total",
		Help: "Failed guarded attempts against external dependencies.",
	}, []string{"class"})
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_breaker_transitions_total",
		Help: "Circuit breaker state changes by guard and new state.",
	}, []string{"guard", "state"})
	heartbeatMisses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "broker_heartbeat_missed",
		Help: "Consecutive missed heartbeats per adapter.",
	}, []string{"adapter"})
)
