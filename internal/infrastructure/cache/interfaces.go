package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache provides a generic caching interface with TTL and atomic operations.
// In a multi-instance deployment this must be backed by a shared store so
// cooldown enforcement stays consistent across instances.
type Cache interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// SetNX sets a value only if the key doesn't exist (atomic)
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Close closes the cache connection
	Close() error
}

// ErrCacheKeyNotFound indicates a cache miss.
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}

// Key prefixes for the engine's cache namespaces.
const (
	CooldownPrefix    = "detection:cooldown:"
	SyncAttemptPrefix = "sync:attempt:"
)
