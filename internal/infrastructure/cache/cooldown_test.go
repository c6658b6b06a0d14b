package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCacheFromClient(client, zap.NewNop()), mr
}

func TestRedisCache_GetMissReturnsNotFound(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Get(context.Background(), "absent")
	var notFound ErrCacheKeyNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "absent", notFound.Key)
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_SetNXClaimsOnce(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	claimed, err := c.SetNX(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = c.SetNX(ctx, "lock", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestCooldownGate_AllowOncePerWindow(t *testing.T) {
	c, mr := newTestCache(t)
	gate := NewCooldownGate(c, 30*time.Minute, zap.NewNop())
	userID := uuid.New()
	ctx := context.Background()

	assert.True(t, gate.Allow(ctx, userID))
	assert.False(t, gate.Allow(ctx, userID), "second pass inside the window is refused")

	// A different user has their own window.
	assert.True(t, gate.Allow(ctx, uuid.New()))

	mr.FastForward(31 * time.Minute)
	assert.True(t, gate.Allow(ctx, userID))
}

func TestCooldownGate_Reset(t *testing.T) {
	c, _ := newTestCache(t)
	gate := NewCooldownGate(c, 30*time.Minute, zap.NewNop())
	userID := uuid.New()
	ctx := context.Background()

	require.True(t, gate.Allow(ctx, userID))
	gate.Reset(ctx, userID)
	assert.True(t, gate.Allow(ctx, userID))
}

type failingCache struct {
	Cache
}

func (failingCache) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestCooldownGate_FailsOpenOnCacheError(t *testing.T) {
	gate := NewCooldownGate(failingCache{}, 30*time.Minute, zap.NewNop())
	assert.True(t, gate.Allow(context.Background(), uuid.New()))
}

func TestSyncTracker_MarkAndExpire(t *testing.T) {
	c, mr := newTestCache(t)
	tracker := NewSyncTracker(c, 24*time.Hour, zap.NewNop())
	userID := uuid.New()
	ctx := context.Background()

	assert.False(t, tracker.RecentlyAttempted(ctx, userID, "apple_health"))

	tracker.MarkAttempt(ctx, userID, "apple_health")
	assert.True(t, tracker.RecentlyAttempted(ctx, userID, "apple_health"))
	assert.False(t, tracker.RecentlyAttempted(ctx, userID, "fitbit"),
		"attempts are tracked per source")

	mr.FastForward(25 * time.Hour)
	assert.False(t, tracker.RecentlyAttempted(ctx, userID, "apple_health"))
}
