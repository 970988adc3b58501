package cachemanager

import (
	"context"
	"time"
)

// Loader resolves a key that missed the cache. The webhook route table uses
// the bot repository lookup as its loader.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// ReadThrough answers reads from the cache and falls back to the loader on
// a miss, storing whatever it loaded under the same key. With bypass set
// every read goes straight to the loader.
type ReadThrough[K comparable, V any] struct {
	cache  Cache[K, V]
	load   Loader[K, V]
	bypass bool
}

// NewReadThrough wraps cache with load as the miss handler.
func NewReadThrough[K comparable, V any](cache Cache[K, V], load Loader[K, V], bypass bool) *ReadThrough[K, V] {
	return &ReadThrough[K, V]{cache: cache, load: load, bypass: bypass}
}

// Get returns the value for key, loading and caching it on a miss. Loader
// errors are returned as-is and never cached.
func (r *ReadThrough[K, V]) Get(ctx context.Context, key K, ttl time.Duration) (V, error) {
	if r.bypass {
		return r.load(ctx, key)
	}

	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}

	return r.loadAndStore(ctx, key, ttl)
}

// GetWithRefresh behaves like Get but restarts the TTL on a cache hit.
func (r *ReadThrough[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, error) {
	if r.bypass {
		return r.load(ctx, key)
	}

	if v, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return v, nil
	}

	return r.loadAndStore(ctx, key, ttl)
}

// Invalidate drops cached entries so the next read goes back to the loader.
func (r *ReadThrough[K, V]) Invalidate(ctx context.Context, keys ...K) error {
	return r.cache.Delete(ctx, keys...)
}

func (r *ReadThrough[K, V]) loadAndStore(ctx context.Context, key K, ttl time.Duration) (V, error) {
	v, err := r.load(ctx, key)
	if err != nil {
		return v, err
	}

	r.cache.Set(ctx, key, v, ttl)

	return v, nil
}
