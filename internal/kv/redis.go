package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"botweave/internal/log"
)

const (
	healthCheckInterval = 30 * time.Second
	redisDialTimeout    = 5 * time.Second
	// After this many consecutive failures the client is rebuilt.
	reconnectThreshold = 3
)

// RedisStore is the redis backend. It degrades rather than fails: while
// redis is unreachable, reads and writes hit an in-process fallback and a
// background health loop keeps probing for recovery.
type RedisStore struct {
	opts     *redis.Options
	fallback *MemoryStore
	stop     chan struct{}

	mu        sync.Mutex
	client    *redis.Client
	available bool
	failures  int
	closed    bool
}

// NewRedisStore connects to redis at addr. Connection failure is not an
// error; the store starts degraded and recovers when redis comes back.
func NewRedisStore(addr, password string, db int) *RedisStore {
	opts := &redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: redisDialTimeout,
	}
	s := &RedisStore{
		opts:     opts,
		client:   redis.NewClient(opts),
		fallback: NewMemoryStore(),
		stop:     make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		log.Warn(log.CatKV, "redis unreachable, starting on in-memory fallback", "addr", addr, "error", err.Error())
	} else {
		s.available = true
		log.Info(log.CatKV, "redis connected", "addr", addr, "db", db)
	}

	log.SafeGo("kv-redis-health", s.healthLoop)
	return s
}

func (s *RedisStore) healthLoop() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.checkHealth()
		}
	}
}

func (s *RedisStore) checkHealth() {
	client, _, closed := s.snapshot()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	err := client.Ping(ctx).Err()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err != nil {
		s.recordFailureLocked(err)
		return
	}
	if !s.available {
		log.Info(log.CatKV, "redis recovered", "addr", s.opts.Addr)
	}
	s.available = true
	s.failures = 0
}

func (s *RedisStore) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.recordFailureLocked(err)
}

func (s *RedisStore) recordFailureLocked(err error) {
	s.available = false
	s.failures++
	log.Warn(log.CatKV, "redis operation failed", "failures", s.failures, "error", err.Error())
	if s.failures >= reconnectThreshold {
		_ = s.client.Close()
		s.client = redis.NewClient(s.opts)
		s.failures = 0
		log.Info(log.CatKV, "redis client rebuilt", "addr", s.opts.Addr)
	}
}

func (s *RedisStore) snapshot() (client *redis.Client, available, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.available, s.closed
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	client, available, closed := s.snapshot()
	if closed {
		return "", false, ErrClosed
	}
	if !available {
		return s.fallback.Get(ctx, key)
	}
	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		s.recordFailure(err)
		return s.fallback.Get(ctx, key)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	client, available, closed := s.snapshot()
	if closed {
		return ErrClosed
	}
	if !available {
		return s.fallback.Set(ctx, key, value, ttl)
	}
	if err := client.Set(ctx, key, value, max(ttl, 0)).Err(); err != nil {
		s.recordFailure(err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	client, available, closed := s.snapshot()
	if closed {
		return false, ErrClosed
	}
	if !available {
		return s.fallback.SetNX(ctx, key, value, ttl)
	}
	ok, err := client.SetNX(ctx, key, value, max(ttl, 0)).Result()
	if err != nil {
		s.recordFailure(err)
		return s.fallback.SetNX(ctx, key, value, ttl)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	client, available, closed := s.snapshot()
	if closed {
		return ErrClosed
	}
	if !available {
		return s.fallback.Delete(ctx, key)
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		s.recordFailure(err)
		return s.fallback.Delete(ctx, key)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	client, available, closed := s.snapshot()
	if closed {
		return false, ErrClosed
	}
	if !available {
		return s.fallback.Exists(ctx, key)
	}
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		s.recordFailure(err)
		return s.fallback.Exists(ctx, key)
	}
	return n > 0, nil
}

// Ping reports the real redis health, not the fallback's.
func (s *RedisStore) Ping(ctx context.Context) error {
	client, _, closed := s.snapshot()
	if closed {
		return ErrClosed
	}
	return client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	client := s.client
	s.mu.Unlock()

	err := client.Close()
	_ = s.fallback.Close()
	return err
}

var _ Store = (*RedisStore)(nil)
