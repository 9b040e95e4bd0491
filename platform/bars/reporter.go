package bars

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/params"
)

// reportInterval is how often the reporter logs a counters snapshot.
const reportInterval = 5 * time.Minute

// StatsReporter periodically logs the cache's lifetime counters so cache
// effectiveness shows up in plain logs, not only in prometheus.
type StatsReporter struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cache    *Cache
	interval time.Duration
}

// NewStatsReporter builds a reporter for the given cache. A non-positive
// interval selects the default.
func NewStatsReporter(ctx context.Context, cache *Cache, interval time.Duration) *StatsReporter {
	ctx, cancel := context.WithCancel(ctx)
	if interval <= 0 {
		interval = reportInterval
	}
	return &StatsReporter{ctx: ctx, cancel: cancel, cache: cache, interval: interval}
}

// Start begins periodic reporting.
func (r *StatsReporter) Start() {
	async.RunEvery(r.ctx, r.interval, r.report)
}

// Stop halts the reporter.
func (r *StatsReporter) Stop() error {
	r.cancel()
	return nil
}

// Status always reports healthy; the reporter has no failure modes beyond
// its context.
func (r *StatsReporter) Status() error {
	return nil
}

func (r *StatsReporter) report() {
	r.reportStats(r.cache.Snapshot())
}

func (r *StatsReporter) reportStats(s Stats) {
	log.WithField("hits", s.CacheHit).
		WithField("misses", s.CacheMiss).
		WithField("sets", s.CacheSet).
		WithField("bytes", s.Bytes).
		WithField("lockWaits", s.LockWaits).
		WithField("providerFetches", s.ProviderFetch).
		WithField("stampedesPrevented", s.StampedePrevented).
		WithField("stampedeFallbacks", s.StampedeFallback).
		Info("Bar cache counters")

	threshold := params.Platform().FallbackAlertThreshold
	if share := fallbackShare(s); share > threshold {
		log.WithField("share", share).
			WithField("threshold", threshold).
			Warn("Stampede fallback rate exceeds alert threshold")
	}
}

// fallbackShare is the fraction of cache lookups that gave up waiting on a
// peer and fetched the provider directly.
func fallbackShare(s Stats) float64 {
	total := s.CacheHit + s.CacheMiss
	if total == 0 {
		return 0
	}
	return float64(s.StampedeFallback) / float64(total)
}
