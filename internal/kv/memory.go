package kv

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// MemoryStore is the in-process backend. It is also the degrade target for
// the redis backend, so it must stay dependency-free and cheap.
type MemoryStore struct {
	cache  *gocache.Cache
	closed atomic.Bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if m.closed.Load() {
		return "", false, ErrClosed
	}
	value, found := m.cache.Get(key)
	if !found {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cache.Set(key, value, normalizeTTL(ttl))
	return nil
}

func (m *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	if err := m.cache.Add(key, value, normalizeTTL(ttl)); err != nil {
		return false, nil // Key already present
	}
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	_, found := m.cache.Get(key)
	return found, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.cache.Flush()
	return nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

var _ Store = (*MemoryStore)(nil)
