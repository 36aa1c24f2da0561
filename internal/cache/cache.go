// Package cache stores record-service responses so analytics can be served
// while the record service is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key written by this package
const KeyPrefix = "adhd:records:"

// Cache is a JSON value cache with per-entry expiry
type Cache interface {
	// Get decodes the cached value into dest; found is false on a miss
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the backend selected by config
func New(config domain.CacheConfig) (Cache, error) {
	switch config.Backend {
	case "", "memory":
		return NewMemoryCache(config.MaxItems, config.TTL), nil
	case "redis":
		return NewRedisCache(config)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}

// MemoryCache is an in-process expirable LRU
type MemoryCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryCache creates a memory cache; size <= 0 means unbounded
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 0 {
		size = 0
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get implements Cache
func (m *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, ok := m.lru.Get(KeyPrefix + key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		m.lru.Remove(KeyPrefix + key)
		return false, nil
	}
	return true, nil
}

// Set implements Cache
func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	m.lru.Add(KeyPrefix+key, data)
	return nil
}

// Delete implements Cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.lru.Remove(KeyPrefix + key)
	return nil
}

// Len reports the number of live entries
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Close implements Cache
func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}

// RedisCache stores entries in Redis with a TTL
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{redis: client, ttl: config.TTL}, nil
}

// Get implements Cache
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := r.redis.Get(ctx, KeyPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		// corrupted entry
		r.redis.Del(ctx, KeyPrefix+key)
		return false, nil
	}
	return true, nil
}

// Set implements Cache
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return r.redis.Set(ctx, KeyPrefix+key, data, r.ttl).Err()
}

// Delete implements Cache
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, KeyPrefix+key).Err()
}

// Ping checks if the Redis connection is alive
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// Close implements Cache
func (r *RedisCache) Close() error {
	return r.redis.Close()
}
