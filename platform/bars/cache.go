package bars

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var log = logrus.WithField("prefix", "barcache")

// Request identifies one bar range to serve.
type Request struct {
	Symbol      string
	Timeframe   Timeframe
	SessionMode types.SessionMode
	Start       time.Time
	End         time.Time
	TraceID     string
	// Provider overrides the cache's default provider for this call.
	Provider Provider
}

// Result is the outcome of one GetBars call: the bars, where they came
// from, and what the cache did to get them.
type Result struct {
	Bars       []Bar
	Provenance types.DataProvenance
	Stats      RunStats
}

// Cache serves bar ranges, fetching each cold key from the provider at
// most once across every worker that shares the redis backend. Within one
// process, singleflight collapses concurrent callers onto a single waiter;
// across processes, an exclusive build lock plus a liveness sentinel keep
// peers polling the cache instead of stampeding the provider.
type Cache struct {
	rdb      redis.UniversalClient
	provider Provider

	l1    *lru.Cache[string, []Bar]
	group singleflight.Group
	stats statsCollector

	instanceID string
}

// NewCache constructs a bar cache over the given redis client and default
// provider.
func NewCache(rdb redis.UniversalClient, provider Provider) (*Cache, error) {
	l1, err := lru.New[string, []Bar](params.Platform().BarCacheL1Size)
	if err != nil {
		return nil, errors.Wrap(err, "could not build L1 cache")
	}
	host, _ := os.Hostname()
	return &Cache{
		rdb:        rdb,
		provider:   provider,
		l1:         l1,
		instanceID: host + ":" + uuid.NewString()[:8],
	}, nil
}

// Snapshot returns the process-lifetime counters.
func (c *Cache) Snapshot() Stats {
	return c.stats.snapshot()
}

// GetBars returns the ordered bars for the request. The caller always
// receives bars or an error, never partial data: any cache-layer failure
// downgrades to a direct provider fetch.
func (c *Cache) GetBars(ctx context.Context, req Request) (*Result, error) {
	provider := req.Provider
	if provider == nil {
		provider = c.provider
	}
	if provider == nil {
		return nil, errors.New("bar cache has no provider")
	}
	key := CacheKey(req.Symbol, req.Timeframe, req.SessionMode, req.Start, req.End)

	// L1 serves decoded ranges without touching redis. Hits here still count
	// as cache hits: the data plane answered without a provider fetch.
	if cached, ok := c.l1.Get(key); ok {
		c.stats.hit()
		return &Result{
			Bars:       cloneBars(cached),
			Provenance: cachedProvenance(provider, req.Timeframe),
			Stats:      RunStats{CacheHit: true},
		}, nil
	}

	// Collapse concurrent in-process callers for the same key onto one
	// fetch; everyone shares the winner's result.
	winner := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		winner = true
		return c.getOrFetch(ctx, key, req, provider)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	// Shared result: hand each caller its own copy so downstream mutation
	// cannot poison peers.
	out := *res
	out.Bars = cloneBars(res.Bars)
	if !winner {
		// This caller rode along on a peer's fetch: from its perspective the
		// range resolved from cache and a stampede was prevented.
		c.stats.hit()
		c.stats.prevented()
		out.Stats = RunStats{CacheHit: true, StampedePrevented: true}
	}
	return &out, nil
}

// getOrFetch runs the distributed protocol for one key.
func (c *Cache) getOrFetch(ctx context.Context, key string, req Request, provider Provider) (*Result, error) {
	cfg := params.Platform()

	// Step 1: cache read.
	if bars, ok, err := c.readCache(ctx, key); err != nil {
		log.WithError(err).WithField("key", key).Warn("Cache read failed, fetching directly")
		return c.directFetch(ctx, key, req, provider, RunStats{})
	} else if ok {
		c.stats.hit()
		c.l1.Add(key, bars)
		return &Result{Bars: bars, Provenance: cachedProvenance(provider, req.Timeframe), Stats: RunStats{CacheHit: true}}, nil
	}
	c.stats.miss()
	stats := RunStats{CacheMiss: true}

	if features.Get().DisableBarCacheLocks {
		return c.directFetch(ctx, key, req, provider, stats)
	}

	// Step 2: try to become the builder.
	lockKey := LockKey(key)
	lockValue := c.instanceID + ":" + req.TraceID
	acquired, err := c.rdb.SetNX(ctx, lockKey, lockValue, cfg.BarCacheLockTTL).Result()
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Lock acquisition failed, fetching directly")
		return c.directFetch(ctx, key, req, provider, stats)
	}
	if acquired {
		return c.buildEntry(ctx, key, req, provider, lockValue, stats)
	}
	return c.waitForPeer(ctx, key, req, provider, stats)
}

// buildEntry is the lock holder's path: fetch, compress, write, unlock.
func (c *Cache) buildEntry(ctx context.Context, key string, req Request, provider Provider, lockValue string, stats RunStats) (*Result, error) {
	cfg := params.Platform()
	lockKey, pendingKey := LockKey(key), PendingKey(key)

	// The pending sentinel tells waiters a live worker is still fetching.
	if err := c.rdb.Set(ctx, pendingKey, lockValue, cfg.BarCachePendingTTL).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("Could not set pending sentinel")
	}
	stopRenewal := c.startRenewal(key, lockValue)
	defer stopRenewal()

	res, err := c.fetchUpstream(ctx, req, provider, &stats)
	if err != nil {
		// Release immediately so waiters fail over fast instead of
		// polling out the grace period.
		c.rdb.Del(context.Background(), lockKey, pendingKey)
		return nil, err
	}

	payload, err := Compress(res.Bars)
	if err != nil {
		c.rdb.Del(context.Background(), lockKey, pendingKey)
		return nil, errors.Wrap(err, "could not compress bars")
	}
	if err := c.rdb.Set(ctx, key, payload, cfg.BarCacheDataTTL).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("Cache write failed; callers will refetch")
	} else {
		c.stats.set(len(payload))
		stats.CacheSet = true
		stats.Bytes = len(payload)
	}
	c.rdb.Del(context.Background(), lockKey, pendingKey)

	c.l1.Add(key, res.Bars)
	res.Stats = stats
	return res, nil
}

// startRenewal keeps the lock and pending sentinel alive while a long fetch
// runs. The returned stop function must be called exactly once.
func (c *Cache) startRenewal(key, lockValue string) func() {
	cfg := params.Platform()
	lockKey, pendingKey := LockKey(key), PendingKey(key)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(cfg.BarCacheRenewalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), cfg.BarCacheRenewalInterval)
				if err := c.rdb.Set(ctx, lockKey, lockValue, cfg.BarCacheLockTTL).Err(); err != nil {
					log.WithError(err).WithField("key", key).Warn("Lock renewal failed")
				}
				if err := c.rdb.Set(ctx, pendingKey, lockValue, cfg.BarCachePendingTTL).Err(); err != nil {
					log.WithError(err).WithField("key", key).Warn("Pending renewal failed")
				}
				cancel()
			case <-done:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// waitForPeer is the loser's path: poll the cache until the holder
// publishes, with liveness checks so a dead holder cannot strand waiters.
// There is deliberately no wall-clock timeout; while the pending sentinel
// stays alive, a peer is still working.
func (c *Cache) waitForPeer(ctx context.Context, key string, req Request, provider Provider, stats RunStats) (*Result, error) {
	cfg := params.Platform()
	pendingKey := PendingKey(key)

	c.stats.lockWait()
	stats.LockWaits++

	start := time.Now()
	poll := cfg.BarCachePollInterval
	missing := 0
	for {
		if err := sleepCtx(ctx, poll); err != nil {
			return nil, err
		}
		if poll += cfg.BarCachePollIncrement; poll > cfg.BarCachePollMax {
			poll = cfg.BarCachePollMax
		}

		bars, ok, err := c.readCache(ctx, key)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("Cache poll failed, fetching directly")
			return c.directFetch(ctx, key, req, provider, stats)
		}
		if ok {
			c.stats.hit()
			c.stats.prevented()
			stats.CacheHit = true
			stats.StampedePrevented = true
			c.l1.Add(key, bars)
			return &Result{Bars: bars, Provenance: cachedProvenance(provider, req.Timeframe), Stats: stats}, nil
		}

		alive, err := c.rdb.Exists(ctx, pendingKey).Result()
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("Pending poll failed, fetching directly")
			return c.directFetch(ctx, key, req, provider, stats)
		}
		if alive > 0 {
			missing = 0
			continue
		}
		// Only count missing sentinels after the grace period: the holder
		// may not have written pending yet.
		if time.Since(start) < cfg.BarCacheWaiterGrace {
			continue
		}
		if missing++; missing < cfg.BarCacheMissingThreshold {
			continue
		}

		// Holder presumed dead. One final cache read, then take over.
		if bars, ok, err := c.readCache(ctx, key); err == nil && ok {
			c.stats.hit()
			c.stats.prevented()
			stats.CacheHit = true
			stats.StampedePrevented = true
			c.l1.Add(key, bars)
			return &Result{Bars: bars, Provenance: cachedProvenance(provider, req.Timeframe), Stats: stats}, nil
		}
		log.WithField("key", key).WithField("waited", time.Since(start)).Warn("Fetch holder died, falling back to direct fetch")
		c.stats.fallback()
		stats.StampedeFallback = true
		return c.directFetch(ctx, key, req, provider, stats)
	}
}

// directFetch bypasses the lock protocol: fetch upstream, then best-effort
// publish so remaining waiters can exit.
func (c *Cache) directFetch(ctx context.Context, key string, req Request, provider Provider, stats RunStats) (*Result, error) {
	res, err := c.fetchUpstream(ctx, req, provider, &stats)
	if err != nil {
		return nil, err
	}
	if payload, err := Compress(res.Bars); err == nil {
		if err := c.rdb.Set(ctx, key, payload, params.Platform().BarCacheDataTTL).Err(); err == nil {
			c.stats.set(len(payload))
			stats.CacheSet = true
			stats.Bytes = len(payload)
		}
	}
	c.l1.Add(key, res.Bars)
	res.Stats = stats
	return res, nil
}

// fetchUpstream calls the provider and enforces the ordering contract.
func (c *Cache) fetchUpstream(ctx context.Context, req Request, provider Provider, stats *RunStats) (*Result, error) {
	c.stats.fetch()
	stats.ProviderFetch = true
	fr, err := provider.FetchBars(ctx, FetchRequest{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Start:     req.Start,
		End:       req.End,
		TraceID:   req.TraceID,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "provider %s fetch failed", provider.Name())
	}
	for i := 1; i < len(fr.Bars); i++ {
		if !fr.Bars[i].Time.After(fr.Bars[i-1].Time) {
			return nil, errors.Errorf("provider %s returned unordered bars at index %d", provider.Name(), i)
		}
	}
	return &Result{Bars: fr.Bars, Provenance: fr.Provenance}, nil
}

// readCache fetches and decodes one key. Missing keys return ok=false with
// no error; decode failures surface as errors so callers fail over.
func (c *Cache) readCache(ctx context.Context, key string) ([]Bar, bool, error) {
	payload, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	bars, err := Decompress(payload)
	if err != nil {
		return nil, false, err
	}
	return bars, true, nil
}

// cachedProvenance describes bars served from cache: the configured
// provider's identity without a raw request id, since no upstream call was
// made for this caller.
func cachedProvenance(provider Provider, tf Timeframe) types.DataProvenance {
	return types.DataProvenance{
		Provider:  provider.Name(),
		Dataset:   "cache",
		Schema:    "ohlcv-" + string(tf),
		Simulated: provider.Name() == "simulated",
	}
}

func cloneBars(in []Bar) []Bar {
	out := make([]Bar, len(in))
	copy(out, in)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
