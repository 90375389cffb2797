package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*redisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisRateLimiterWithClient(client, limit, window).(*redisRateLimiter)
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter, mr
}

func TestRedisRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "webhook:whatsapp")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, "webhook:whatsapp")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys have their own budget.
	allowed, err = limiter.Allow(ctx, "webhook:sms")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _ := limiter.Allow(ctx, "k")
	assert.False(t, allowed)

	now = base.Add(61 * time.Second)
	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_SetsExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t, 5, 30*time.Second)

	_, err := limiter.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ratelimit:k"))
	assert.Equal(t, 31*time.Second, mr.TTL("ratelimit:k"))
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	limiter := NewRedisRateLimiterWithClient(client, 5, time.Minute)
	defer limiter.Close()

	_, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisRateLimiter(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-valid-url", 100, time.Minute)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 1, time.Minute)
	require.NoError(t, err)
	defer limiter.Close()

	allowed, err := limiter.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "any")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}
