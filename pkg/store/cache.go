package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache backs short-lived gateway state: last-used throttles for API keys and
// evaluation idempotency locks. Misses are reported as redis.Nil on both
// implementations so callers only handle one sentinel.
type Cache interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache is a thin pass-through; redis already reports misses as
// redis.Nil, the shared sentinel.
type RedisCache struct{ client *redis.Client }

func (r *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MemoryCache keeps the same contract in-process for single-instance
// deployments. Expiry is checked lazily per key; a full sweep runs only when
// the map grows past sweepThreshold, so the hot path never scans everything.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

const sweepThreshold = 1024

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]cacheEntry{}}
}

// liveLocked reports whether key holds an unexpired entry, dropping it when
// stale.
func (m *MemoryCache) liveLocked(key string, now time.Time) (cacheEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if now.After(e.expiresAt) {
		delete(m.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (m *MemoryCache) SetNX(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.liveLocked(key, now); live {
		return false, nil
	}
	m.storeLocked(key, value, ttl, now)
	return true, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, live := m.liveLocked(key, time.Now())
	if !live {
		return "", redis.Nil
	}
	return e.value, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(key, value, ttl, time.Now())
	return nil
}

func (m *MemoryCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) storeLocked(key, value string, ttl time.Duration, now time.Time) {
	if len(m.entries) >= sweepThreshold {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
}

// NewCache prefers redis so throttle state survives restarts and is shared
// across gateway instances; it falls back to process memory when redis is
// absent or unreachable.
func NewCache(ctx context.Context, client *redis.Client) Cache {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return &RedisCache{client: client}
		}
	}
	return NewMemoryCache()
}
