package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) *RedisStore {
	mr := miniredis.RunT(t)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func processingRecord(key, hash string, at time.Time) *Record {
	return &Record{Key: key, RequestHash: hash, Status: StatusProcessing, CreatedAt: at}
}

func TestRedisStore_ClaimLifecycle(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	existing, claimed, err := store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)
	assert.Equal(t, true, existing == nil)

	// The second claim loses and observes the processing record.
	existing, claimed, err = store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, false, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, StatusProcessing, existing.Status)
	assert.Equal(t, "h1", existing.RequestHash)

	resp := &CachedResponse{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"id":"b99"}`),
	}
	require.NoError(t, store.Complete(ctx, "k1", resp))

	existing, claimed, err = store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, false, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, StatusCompleted, existing.Status)
	require.NotNil(t, existing.Response)
	assert.Equal(t, http.StatusCreated, existing.Response.StatusCode)
	assert.DeepEqual(t, []byte(`{"id":"b99"}`), existing.Response.Body)
	assert.Equal(t, "application/json", existing.Response.Header.Get("Content-Type"))
}

func TestRedisStore_FailedKeyCanBeClearedAndReclaimed(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, claimed, err := store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	require.Equal(t, true, claimed)
	require.NoError(t, store.Fail(ctx, "k1"))

	existing, claimed, err := store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, false, claimed)
	assert.Equal(t, StatusFailed, existing.Status)

	require.NoError(t, store.Delete(ctx, "k1"))
	_, claimed, err = store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)
}

func TestRedisStore_EvictsOldestOnOverflow(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.Platform().Copy()
	cfg.IdempotencyMaxRecords = 10
	params.OverridePlatformConfig(cfg)

	store := setupRedisStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	keys := []string{"k00", "k01", "k02", "k03", "k04", "k05", "k06", "k07", "k08", "k09", "k10"}
	for i, key := range keys {
		_, claimed, err := store.TryBegin(ctx, processingRecord(key, "h", base.Add(time.Duration(i)*time.Millisecond)))
		require.NoError(t, err)
		require.Equal(t, true, claimed, "key %s", key)
	}

	// The 11th insert breached the cap of 10: ceil(11 * 0.10) = 2 oldest
	// records were evicted, so k00 claims fresh while k10 still exists.
	_, claimed, err := store.TryBegin(ctx, processingRecord("k00", "h", base.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)

	existing, claimed, err := store.TryBegin(ctx, processingRecord("k10", "h", base.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, false, claimed)
	assert.Equal(t, StatusProcessing, existing.Status)
}

func TestRedisStore_CleanupExpired(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, key := range []string{"k1", "k2"} {
		_, claimed, err := store.TryBegin(ctx, processingRecord(key, "h", now))
		require.NoError(t, err)
		require.Equal(t, true, claimed)
	}

	removed, err := store.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = store.Cleanup(ctx, now.Add(params.Platform().IdempotencyTTL+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, claimed, err := store.TryBegin(ctx, processingRecord("k1", "h", now))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)
}

func TestMemoryStore_ClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, claimed, err := store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)

	existing, claimed, err := store.TryBegin(ctx, processingRecord("k1", "h1", now))
	require.NoError(t, err)
	assert.Equal(t, false, claimed)
	assert.Equal(t, StatusProcessing, existing.Status)

	require.NoError(t, store.Fail(ctx, "k1"))
	require.NoError(t, store.Delete(ctx, "k1"))
	_, claimed, err = store.TryBegin(ctx, processingRecord("k1", "h2", now))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)

	// A claim arriving past the TTL replaces the stale record outright.
	stale := now.Add(params.Platform().IdempotencyTTL + time.Minute)
	_, claimed, err = store.TryBegin(ctx, processingRecord("k1", "h3", stale))
	require.NoError(t, err)
	assert.Equal(t, true, claimed)
}

func TestMemoryStore_OverflowAndCleanup(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.Platform().Copy()
	cfg.IdempotencyMaxRecords = 10
	params.OverridePlatformConfig(cfg)

	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 11; i++ {
		key := string(rune('a' + i))
		_, claimed, err := store.TryBegin(ctx, processingRecord(key, "h", base.Add(time.Duration(i)*time.Millisecond)))
		require.NoError(t, err)
		require.Equal(t, true, claimed, "key %s", key)
	}
	assert.Equal(t, 9, store.Len(), "11 records minus the evicted oldest 2")

	removed, err := store.Cleanup(ctx, base.Add(params.Platform().IdempotencyTTL+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 9, removed)
	assert.Equal(t, 0, store.Len())
}
