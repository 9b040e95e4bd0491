package idempotency

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/pkg/errors"
)

// MemoryStore keeps idempotency records in process memory. It backs
// single-process deployments that run without redis, and tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]*Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]*Record)}
}

// TryBegin claims the key under the store lock. rec.CreatedAt doubles as
// the claim time for lazy expiry of whatever record currently holds the key.
func (s *MemoryStore) TryBegin(_ context.Context, rec *Record) (*Record, bool, error) {
	cfg := params.Platform()
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.recs[rec.Key]; ok {
		if rec.CreatedAt.Sub(existing.CreatedAt) < cfg.IdempotencyTTL {
			cp := *existing
			return &cp, false, nil
		}
		delete(s.recs, rec.Key)
	}
	cp := *rec
	s.recs[rec.Key] = &cp
	s.evictOverflowLocked(cfg.IdempotencyMaxRecords, cfg.IdempotencyEvictFraction)
	return nil, true, nil
}

// Complete attaches the response and flips the record to completed.
func (s *MemoryStore) Complete(_ context.Context, key string, resp *CachedResponse) error {
	return s.update(key, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Response = resp
	})
}

// Fail flips the record to failed.
func (s *MemoryStore) Fail(_ context.Context, key string) error {
	return s.update(key, func(rec *Record) {
		rec.Status = StatusFailed
	})
}

// Delete removes the record.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, key)
	return nil
}

// Cleanup removes records older than the TTL as of now.
func (s *MemoryStore) Cleanup(_ context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-params.Platform().IdempotencyTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, rec := range s.recs {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.recs, key)
			removed++
		}
	}
	if removed > 0 {
		recordsSwept.Add(float64(removed))
	}
	return removed, nil
}

// Len reports the current record count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func (s *MemoryStore) update(key string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return errors.Errorf("no idempotency record for key %s", key)
	}
	mutate(rec)
	return nil
}

func (s *MemoryStore) evictOverflowLocked(maxRecords int, fraction float64) {
	if len(s.recs) <= maxRecords {
		return
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(s.recs))
	for key, rec := range s.recs {
		all = append(all, aged{key: key, at: rec.CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	evict := int(math.Ceil(float64(len(all)) * fraction))
	if evict > len(all) {
		evict = len(all)
	}
	for _, a := range all[:evict] {
		delete(s.recs, a.key)
	}
	recordsEvicted.Add(float64(evict))
	log.WithField("evicted", evict).Warn("Idempotency store over capacity; evicted oldest records")
}
