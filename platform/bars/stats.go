package bars

import (
	"sync/atomic"
)

// RunStats reports what one GetBars call did. The executor persists these
// on the session's provenance; tests assert the stampede invariants on
// them.
type RunStats struct {
	CacheHit          bool
	CacheMiss         bool
	CacheSet          bool
	Bytes             int
	LockWaits         int
	ProviderFetch     bool
	StampedePrevented bool
	StampedeFallback  bool
}

// Stats aggregates cache activity across the process lifetime. The stats
// reporter logs a snapshot periodically; prometheus counters mirror every
// field for scraping.
type Stats struct {
	CacheHit          uint64
	CacheMiss         uint64
	CacheSet          uint64
	Bytes             uint64
	LockWaits         uint64
	ProviderFetch     uint64
	StampedePrevented uint64
	StampedeFallback  uint64
}

// statsCollector owns the atomic counters behind Stats.
type statsCollector struct {
	cacheHit          atomic.Uint64
	cacheMiss         atomic.Uint64
	cacheSet          atomic.Uint64
	bytes             atomic.Uint64
	lockWaits         atomic.Uint64
	providerFetch     atomic.Uint64
	stampedePrevented atomic.Uint64
	stampedeFallback  atomic.Uint64
}

func (s *statsCollector) hit() {
	s.cacheHit.Add(1)
	cacheHitCounter.Inc()
}

func (s *statsCollector) miss() {
	s.cacheMiss.Add(1)
	cacheMissCounter.Inc()
}

func (s *statsCollector) set(bytes int) {
	s.cacheSet.Add(1)
	s.bytes.Add(uint64(bytes))
	cacheSetCounter.Inc()
	cacheBytesCounter.Add(float64(bytes))
}

func (s *statsCollector) lockWait() {
	s.lockWaits.Add(1)
	lockWaitCounter.Inc()
}

func (s *statsCollector) fetch() {
	s.providerFetch.Add(1)
	providerFetchCounter.Inc()
}

func (s *statsCollector) prevented() {
	s.stampedePrevented.Add(1)
	stampedePreventedCounter.Inc()
}

func (s *statsCollector) fallback() {
	s.stampedeFallback.Add(1)
	stampedeFallbackCounter.Inc()
}

func (s *statsCollector) snapshot() Stats {
	return Stats{
		CacheHit:          s.cacheHit.Load(),
		CacheMiss:         s.cacheMiss.Load(),
		CacheSet:          s.cacheSet.Load(),
		Bytes:             s.bytes.Load(),
		LockWaits:         s.lockWaits.Load(),
		ProviderFetch:     s.providerFetch.Load(),
		StampedePrevented: s.stampedePrevented.Load(),
		StampedeFallback:  s.stampedeFallback.Load(),
	}
}
