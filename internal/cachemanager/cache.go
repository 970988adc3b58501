// Package cachemanager holds the typed TTL caches behind hot lookup paths.
// The webhook handler keeps its app_id to bot route table here so repeated
// deliveries skip the bot repository.
package cachemanager

import (
	"context"
	"time"
)

// Cache is the read/write surface shared by the in-process caches.
// Implementations must be safe for concurrent use.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// GetWithRefresh returns the cached value and restarts its TTL on a hit.
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
}
