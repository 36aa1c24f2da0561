package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()
	key := "stats-" + uuid.NewString()

	var got domain.AssessmentStats
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := domain.AssessmentStats{
		TotalAssessments:     3,
		PredictionsBreakdown: map[string]int{"ADHD": 2, "Healthy": 1},
		RiskLevelsBreakdown:  map[string]int{"high": 2, "low": 1},
	}
	require.NoError(t, c.Set(ctx, key, want))

	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, key))
	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(8, time.Minute)
	defer c.Close()
	exerciseCache(t, c)
}

func TestMemoryCache_Evicts(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)
	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "b", 2))
	require.NoError(t, c.Set(ctx, "c", 3))
	assert.Equal(t, 2, c.Len())

	var v int
	found, _ := c.Get(ctx, "a", &v)
	assert.False(t, found, "oldest entry evicted")
	found, _ = c.Get(ctx, "c", &v)
	assert.True(t, found)
	assert.Equal(t, 3, v)
}

func TestMemoryCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "k", "v"))

	var v string
	assert.Eventually(t, func() bool {
		found, _ := c.Get(ctx, "k", &v)
		return !found
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_TypeMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, time.Minute)
	require.NoError(t, c.Set(ctx, "k", "not a number"))

	var n int
	found, err := c.Get(ctx, "k", &n)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
}

func TestNew_Backends(t *testing.T) {
	c, err := New(domain.CacheConfig{Backend: "memory", MaxItems: 4, TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = New(domain.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)

	_, err = New(domain.CacheConfig{Backend: "redis", RedisURL: "not-a-url"})
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewRedisCache(domain.CacheConfig{RedisURL: url, TTL: time.Minute, PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping(context.Background()))
	exerciseCache(t, c)
}
