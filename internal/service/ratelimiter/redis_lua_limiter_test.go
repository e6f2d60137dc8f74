package ratelimiter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, buckets map[string]BucketConfig) (*RedisLuaLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLuaLimiter(rdb, buckets), srv
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(60)
	assert.Equal(t, int64(60), cfg.Capacity)
	assert.InDelta(t, 1.0, cfg.RefillRate, 1e-9)

	assert.Zero(t, NewBucketConfigFromPerMinute(0))
	assert.Zero(t, NewBucketConfigFromPerMinute(-5))
}

func TestNilLimiterAllows(t *testing.T) {
	limiter := NewRedisLuaLimiter(nil, nil)
	require.Nil(t, limiter)

	allowed, retryAfter, err := limiter.Allow(context.Background(), "ai_chat", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestAllowUnknownBucketIsUnlimited(t *testing.T) {
	limiter, _ := newTestLimiter(t, map[string]BucketConfig{})

	allowed, _, err := limiter.Allow(context.Background(), "unconfigured", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowExhaustsBucket(t *testing.T) {
	limiter, _ := newTestLimiter(t, map[string]BucketConfig{
		"ai_chat": {Capacity: 2, RefillRate: 0.001},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "ai_chat", 1)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within capacity", i+1)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "ai_chat", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter.Seconds(), float64(0))
}

func TestSetBucketConfig(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "reports", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	limiter.SetBucketConfig("reports", BucketConfig{Capacity: 1, RefillRate: 0.001})

	allowed, _, err = limiter.Allow(ctx, "reports", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "reports", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAllowFailsOpenOnRedisError(t *testing.T) {
	limiter, srv := newTestLimiter(t, map[string]BucketConfig{
		"ai_chat": {Capacity: 5, RefillRate: 1},
	})
	srv.Close()

	allowed, _, err := limiter.Allow(context.Background(), "ai_chat", 1)
	assert.Error(t, err)
	assert.True(t, allowed, "a limiter outage must not block AI calls")
}
