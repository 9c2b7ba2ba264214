package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/redis/go-redis/v9"
)

// Cache abstracts the fetch cache so Provider can run against an in-process
// map in tests/demo and against Redis in production without branching.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// MemoryCache is a small in-process TTL cache, used when no Redis address is
// configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

// RedisCache wraps go-redis for shared caching across process restarts and
// multiple scheduler instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		observ.Log("marketdata.redis_get_failed", map[string]any{"error": err.Error()})
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		observ.Log("marketdata.redis_set_failed", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}

// NewCache picks Redis when addr is set, otherwise an in-process map.
func NewCache(addr string) Cache {
	if addr == "" {
		return NewMemoryCache()
	}
	return NewRedisCache(addr)
}
