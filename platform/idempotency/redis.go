package idempotency

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	recordPrefix = "idem:"
	// indexKey is a sorted set of record keys scored by creation time. It
	// backs capacity eviction and the TTL sweep.
	indexKey = "idem:index"
)

// RedisStore shares idempotency records across every process that serves
// the API. Record bodies expire natively at the configured TTL; the index
// entry is removed by the sweeper or by eviction.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore constructs a store over the given redis client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func recordKey(key string) string {
	return recordPrefix + key
}

// TryBegin claims the key with SET NX. Losing the claim reads the winner's
// record; a record that expires between the two steps is retried once.
func (s *RedisStore) TryBegin(ctx context.Context, rec *Record) (*Record, bool, error) {
	cfg := params.Platform()
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, false, errors.Wrap(err, "could not encode idempotency record")
	}
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, recordKey(rec.Key), payload, cfg.IdempotencyTTL).Result()
		if err != nil {
			return nil, false, errors.Wrap(err, "could not claim idempotency key")
		}
		if ok {
			if err := s.rdb.ZAdd(ctx, indexKey, redis.Z{
				Score:  float64(rec.CreatedAt.UnixNano()),
				Member: rec.Key,
			}).Err(); err != nil {
				log.WithError(err).WithField("key", rec.Key).Warn("Could not index idempotency record")
			}
			s.evictOverflow(ctx)
			return nil, true, nil
		}
		existing, found, err := s.get(ctx, rec.Key)
		if err != nil {
			return nil, false, err
		}
		if found {
			return existing, false, nil
		}
	}
	return nil, false, errors.New("idempotency record expired during claim")
}

// Complete attaches the response and flips the record to completed. The
// claimant is the only writer for its key while processing, so a plain
// read-modify-write suffices.
func (s *RedisStore) Complete(ctx context.Context, key string, resp *CachedResponse) error {
	return s.update(ctx, key, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Response = resp
	})
}

// Fail flips the record to failed so a retry can clear and re-claim it.
func (s *RedisStore) Fail(ctx context.Context, key string) error {
	return s.update(ctx, key, func(rec *Record) {
		rec.Status = StatusFailed
	})
}

// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, recordKey(key)).Err(); err != nil {
		return errors.Wrap(err, "could not delete idempotency record")
	}
	if err := s.rdb.ZRem(ctx, indexKey, key).Err(); err != nil {
		return errors.Wrap(err, "could not unindex idempotency record")
	}
	return nil
}

// Cleanup sweeps index entries older than the TTL. The record bodies have
// usually expired natively by then; deleting them again is harmless.
func (s *RedisStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-params.Platform().IdempotencyTTL)
	maxScore := strconv.FormatInt(cutoff.UnixNano(), 10)
	members, err := s.rdb.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "could not list expired idempotency keys")
	}
	if len(members) == 0 {
		return 0, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = recordKey(m)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, errors.Wrap(err, "could not delete expired idempotency records")
	}
	if err := s.rdb.ZRemRangeByScore(ctx, indexKey, "-inf", maxScore).Err(); err != nil {
		return 0, errors.Wrap(err, "could not trim idempotency index")
	}
	recordsSwept.Add(float64(len(members)))
	return len(members), nil
}

// evictOverflow drops the oldest fraction of records once the store exceeds
// its capacity. Best effort: an over-full store degrades replay, not
// correctness.
func (s *RedisStore) evictOverflow(ctx context.Context) {
	cfg := params.Platform()
	count, err := s.rdb.ZCard(ctx, indexKey).Result()
	if err != nil {
		log.WithError(err).Warn("Could not size idempotency index")
		return
	}
	if count <= int64(cfg.IdempotencyMaxRecords) {
		return
	}
	evict := int64(math.Ceil(float64(count) * cfg.IdempotencyEvictFraction))
	members, err := s.rdb.ZRange(ctx, indexKey, 0, evict-1).Result()
	if err != nil {
		log.WithError(err).Warn("Could not list idempotency records for eviction")
		return
	}
	if len(members) == 0 {
		return
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = recordKey(m)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		log.WithError(err).Warn("Could not evict idempotency records")
		return
	}
	if err := s.rdb.ZRemRangeByRank(ctx, indexKey, 0, evict-1).Err(); err != nil {
		log.WithError(err).Warn("Could not trim idempotency index after eviction")
	}
	recordsEvicted.Add(float64(len(members)))
	log.WithField("evicted", len(members)).Warn("Idempotency store over capacity; evicted oldest records")
}

func (s *RedisStore) get(ctx context.Context, key string) (*Record, bool, error) {
	payload, err := s.rdb.Get(ctx, recordKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "could not read idempotency record")
	}
	rec := &Record{}
	if err := json.Unmarshal([]byte(payload), rec); err != nil {
		return nil, false, errors.Wrap(err, "could not decode idempotency record")
	}
	return rec, true, nil
}

func (s *RedisStore) update(ctx context.Context, key string, mutate func(*Record)) error {
	rec, found, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("no idempotency record for key %s", key)
	}
	mutate(rec)
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "could not encode idempotency record")
	}
	// Preserve the original expiry window rather than restarting it.
	ttl := params.Platform().IdempotencyTTL - time.Since(rec.CreatedAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.rdb.Set(ctx, recordKey(key), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "could not update idempotency record")
	}
	return nil
}
