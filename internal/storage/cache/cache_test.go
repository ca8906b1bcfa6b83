package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainScope/internal/model"
)

func setupTestCache(t *testing.T, ttl time.Duration, historyLen int64) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewStatsCacheFromClient(client, ttl, historyLen)
	t.Cleanup(func() {
		_ = cache.Close()
	})
	return cache, mr
}

func TestSnapshotMissing(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute, 0)

	_, ok, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetSnapshotRoundTrip(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute, 0)
	ctx := context.Background()

	want := model.NetworkStats{
		LatestBlock:     120,
		AvgBlockTime:    13.5,
		BlocksAnalyzed:  100,
		Difficulty:      "1000000",
		DifficultyHuman: "1.00 M",
		ActiveMiners:    4,
		ComputedAt:      time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, cache.SetSnapshot(ctx, want))

	got, ok, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	assert.Equal(t, time.Minute, mr.TTL(statsKey))
}

func TestSnapshotExpires(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute, 0)
	ctx := context.Background()

	require.NoError(t, cache.SetSnapshot(ctx, model.NetworkStats{LatestBlock: 1}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryBounded(t *testing.T) {
	cache, _ := setupTestCache(t, 0, 2)
	ctx := context.Background()

	for block := uint64(1); block <= 3; block++ {
		require.NoError(t, cache.SetSnapshot(ctx, model.NetworkStats{LatestBlock: block}))
	}

	history, err := cache.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(3), history[0].LatestBlock)
	assert.Equal(t, uint64(2), history[1].LatestBlock)
}
