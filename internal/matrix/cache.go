package matrix

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache stores computed matrices keyed by stop-set fingerprint. Entries are
// immutable once published: Get returns the stored pointer and callers must
// not mutate it.
type Cache interface {
	Get(ctx context.Context, key string) (*Matrix, bool)
	Put(ctx context.Context, key string, m *Matrix)
}

// MemoryCache is a process-local cache safe for concurrent runs.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]*Matrix
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]*Matrix)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Matrix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.m[key]
	return m, ok
}

func (c *MemoryCache) Put(_ context.Context, key string, m *Matrix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; ok {
		return // first writer wins; entries never change
	}
	c.m[key] = m
}

type redisMatrix struct {
	Minutes  [][]float64 `json:"minutes"`
	Miles    [][]float64 `json:"miles"`
	Depot    int         `json:"depot"`
	Degraded bool        `json:"degraded"`
}

// RedisCache shares matrices between processes running repeated what-if
// optimizations over the same stop set.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Matrix, bool) {
	data, err := c.rdb.Get(ctx, "routeflow:matrix:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var rm redisMatrix
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, false
	}
	return &Matrix{Minutes: rm.Minutes, Miles: rm.Miles, Depot: rm.Depot, Degraded: rm.Degraded}, true
}

func (c *RedisCache) Put(ctx context.Context, key string, m *Matrix) {
	data, err := json.Marshal(redisMatrix{Minutes: m.Minutes, Miles: m.Miles, Depot: m.Depot, Degraded: m.Degraded})
	if err != nil {
		return
	}
	_ = c.rdb.SetNX(ctx, "routeflow:matrix:"+key, data, c.ttl).Err()
}
