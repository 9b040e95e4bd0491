package bars

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_hit_total",
		Help: "The total number of bar ranges served from cache.",
	})
	cacheMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_miss_total",
		Help: "The total number of bar ranges not found in cache.",
	})
	cacheSetCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_set_total",
		Help: "The total number of bar ranges written to cache.",
	})
	cacheBytesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_bytes_total",
		Help: "The total compressed payload bytes written to cache.",
	})
	lockWaitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_lock_waits_total",
		Help: "The total number of callers that waited on another worker's fetch lock.",
	})
	providerFetchCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_provider_fetch_total",
		Help: "The total number of upstream provider fetches.",
	})
	stampedePreventedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_stampede_prevented_total",
		Help: "The total number of callers that resolved from cache after waiting out a peer's fetch.",
	})
	stampedeFallbackCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_cache_stampede_fallback_total",
		Help: "The total number of waiters that fetched directly after a fetch holder died.",
	})
)
