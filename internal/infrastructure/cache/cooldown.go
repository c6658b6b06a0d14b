package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CooldownGate throttles per-user detection passes through a shared cache
// key with a TTL. The first caller in a window claims the key atomically;
// everyone else is told to wait. Cache outages fail open so a degraded
// cache never blocks detection.
type CooldownGate struct {
	cache  Cache
	window time.Duration
	logger *zap.Logger
}

// NewCooldownGate creates a gate with the given cooldown window.
func NewCooldownGate(cache Cache, window time.Duration, logger *zap.Logger) *CooldownGate {
	return &CooldownGate{cache: cache, window: window, logger: logger}
}

// Allow reports whether a detection pass may proceed for the user. The
// first caller in a window claims the key; later callers are refused until
// it expires. Cache failures allow the pass.
func (g *CooldownGate) Allow(ctx context.Context, userID uuid.UUID) bool {
	key := CooldownPrefix + userID.String()

	claimed, err := g.cache.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.window)
	if err != nil {
		g.logger.Warn("cooldown check failed, failing open",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return true
	}

	return claimed
}

// Reset clears the user's cooldown. Privileged passes call it so their
// fresher results are not locked behind a window started before them.
func (g *CooldownGate) Reset(ctx context.Context, userID uuid.UUID) {
	if err := g.cache.Delete(ctx, CooldownPrefix+userID.String()); err != nil {
		g.logger.Warn("cooldown reset failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// SyncTracker remembers recent ingest attempts per user and source so the
// scheduler can avoid hammering upstream device APIs.
type SyncTracker struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewSyncTracker creates a tracker with the given attempt TTL.
func NewSyncTracker(cache Cache, ttl time.Duration, logger *zap.Logger) *SyncTracker {
	return &SyncTracker{cache: cache, ttl: ttl, logger: logger}
}

// MarkAttempt records an ingest attempt. Errors are logged, not returned;
// the tracker is advisory.
func (t *SyncTracker) MarkAttempt(ctx context.Context, userID uuid.UUID, source string) {
	key := SyncAttemptPrefix + userID.String() + ":" + source
	if err := t.cache.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), t.ttl); err != nil {
		t.logger.Warn("sync attempt mark failed",
			zap.String("user_id", userID.String()),
			zap.String("source", source),
			zap.Error(err))
	}
}

// RecentlyAttempted reports whether an attempt was recorded within the TTL.
func (t *SyncTracker) RecentlyAttempted(ctx context.Context, userID uuid.UUID, source string) bool {
	key := SyncAttemptPrefix + userID.String() + ":" + source
	exists, err := t.cache.Exists(ctx, key)
	if err != nil {
		t.logger.Warn("sync attempt lookup failed",
			zap.String("user_id", userID.String()),
			zap.String("source", source),
			zap.Error(err))
		return false
	}
	return exists
}
