package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedStats struct {
	Total int `json:"total"`
}

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(RedisConfig{URL: "redis://" + mr.Addr() + "/0", TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestRedisCacheRoundTripAndTTL(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Ping(ctx))

	var got cachedStats
	ok, err := cache.Get(ctx, "placements:stats#0:*:*", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "placements:stats#0:*:*", cachedStats{Total: 3}))
	assert.True(t, mr.Exists("pipeline:placements:stats#0:*:*"))

	ok, err = cache.Get(ctx, "placements:stats#0:*:*", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got.Total)

	mr.FastForward(2 * time.Minute)
	ok, err = cache.Get(ctx, "placements:stats#0:*:*", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheInvalidateBumpsGeneration(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	gen, err := cache.Generation(ctx, "scorecards:summary:5")
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, cache.Set(ctx, "scorecards:summary:5#0:", cachedStats{Total: 1}))
	require.NoError(t, cache.Set(ctx, "scorecards:summary:50#0:", cachedStats{Total: 2}))

	require.NoError(t, cache.Invalidate(ctx, "scorecards:summary:5"))

	gen, err = cache.Generation(ctx, "scorecards:summary:5")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	other, err := cache.Generation(ctx, "scorecards:summary:50")
	require.NoError(t, err)
	assert.Zero(t, other)

	assert.False(t, mr.Exists("pipeline:scorecards:summary:5#0:"))
	assert.True(t, mr.Exists("pipeline:scorecards:summary:50#0:"))
}

func TestRedisCacheRejectsCorruptValues(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	require.NoError(t, mr.Set("pipeline:broken", "{not json"))

	var got cachedStats
	ok, err := cache.Get(context.Background(), "broken", &got)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{URL: "http://localhost"})
	assert.Error(t, err)
}
