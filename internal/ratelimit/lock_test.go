package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/estatebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerRunsUnguarded(t *testing.T) {
	var locker *Locker
	called := false
	err := locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	_, _, err = locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}

func TestNewLockerWithoutClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewTokenBucket(nil))
}

func TestActorLimiterDisabled(t *testing.T) {
	limiter := NewActorLimiter(config.Config{}, nil)
	assert.False(t, limiter.Enabled())

	result, err := limiter.Allow(context.Background(), "user:1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func newRedisLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), server
}

func TestWithLockHeldByAnotherHolder(t *testing.T) {
	locker, server := newRedisLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "generation:2026-01", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = locker.WithLock(ctx, "generation:2026-01", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, called)

	// a foreign token must not free the key
	require.NoError(t, locker.Release(ctx, "generation:2026-01", "someone-else"))
	assert.True(t, server.Exists("generation:2026-01"))

	require.NoError(t, locker.Release(ctx, "generation:2026-01", token))
	err = locker.WithLock(ctx, "generation:2026-01", time.Minute, func(context.Context) error {
		called = true
		assert.True(t, server.Exists("generation:2026-01"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, server.Exists("generation:2026-01"), "lock released after fn")
}
