// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, newRedisCacheWithClient(client, "", zerolog.Nop())
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t)

	cache.Set("test-key", []byte("test-value"), 5*time.Minute)

	val, found := cache.Get("test-key")
	require.True(t, found)
	assert.Equal(t, []byte("test-value"), val)
	assert.True(t, mr.Exists("e2epg:test-key"), "keys are namespaced")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestRedisCache_GetMissing(t *testing.T) {
	_, cache := setupMiniRedis(t)

	val, found := cache.Get("nonexistent")
	assert.False(t, found)
	assert.Nil(t, val)
	assert.Equal(t, int64(1), cache.Stats().Misses)
}

func TestRedisCache_Expiration(t *testing.T) {
	mr, cache := setupMiniRedis(t)

	cache.Set("expiring", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)

	_, found := cache.Get("expiring")
	assert.False(t, found)
}

func TestRedisCache_ClearKeepsForeignKeys(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	require.NoError(t, mr.Set("other:key", "x"))

	cache.Set("a", []byte("1"), time.Minute)
	cache.Set("b", []byte("2"), time.Minute)
	cache.Delete("a")
	assert.False(t, mr.Exists("e2epg:a"))

	cache.Clear()
	assert.False(t, mr.Exists("e2epg:b"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCache_HealthCheck(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	require.NoError(t, cache.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, cache.HealthCheck(context.Background()))
}

func TestNewRedisCache_ConnectFailure(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewRedisCache_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr(), Prefix: "t:"}, zerolog.Nop())
	require.NoError(t, err)
	defer c.Stop()

	c.Set("k", []byte("v"), time.Minute)
	assert.True(t, mr.Exists("t:k"))
}
