package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replays_total",
		Help: "Responses served from the idempotency store instead of re-executing.",
	})
	keyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_key_conflicts_total",
		Help: "Requests rejected for reusing a key with a different body.",
	})
	inflightRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_inflight_rejections_total",
		Help: "Requests rejected because the first execution is still processing.",
	})
	oversizedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_oversized_responses_total",
		Help: "Responses too large to cache; their records were dropped.",
	})
	recordsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_records_evicted_total",
		Help: "Records evicted because the store exceeded its capacity.",
	})
	recordsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_records_swept_total",
		Help: "Records removed by the TTL sweeper.",
	})
)
