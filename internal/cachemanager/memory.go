package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"botweave/internal/log"
)

// Fallbacks applied when a cache is built with zero durations.
const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// InMemory is a Cache backed by an in-process go-cache store. The useCase
// label tells cache log lines apart when several caches are live.
type InMemory[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewInMemory builds a cache for one use case. Zero or negative durations
// fall back to the package defaults.
func NewInMemory[K ~string, V any](useCase string, expiration, cleanup time.Duration) *InMemory[K, V] {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}

	return &InMemory[K, V]{
		useCase: useCase,
		cache:   gocache.New(expiration, cleanup),
	}
}

// Get retrieves the value stored under key.
func (c *InMemory[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	raw, found := c.cache.Get(string(key))
	if !found {
		return zero, false
	}

	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatCache, "cached value has wrong type", "use_case", c.useCase, "key", key)

		return zero, false
	}

	log.Debug(log.CatCache, "cache hit", "use_case", c.useCase, "key", key)

	return v, true
}

// GetWithRefresh retrieves the value under key and, on a hit, rewrites it so
// the TTL starts over.
func (c *InMemory[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	v, found := c.Get(ctx, key)
	if !found {
		return v, false
	}

	c.Set(ctx, key, v, ttl)

	return v, true
}

// Set stores value under key for ttl.
func (c *InMemory[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete drops the given keys. Missing keys are not an error.
func (c *InMemory[K, V]) Delete(ctx context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}

	return nil
}

var _ Cache[string, any] = (*InMemory[string, any])(nil)
