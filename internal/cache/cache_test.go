// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(0) // no janitor

	cache.Set("key1", []byte("value1"), 5*time.Minute)

	val, ok := cache.Get("key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, []byte("value1"), val)

	_, ok = cache.Get("nonexistent")
	assert.False(t, ok)
}

func TestMemoryCache_CopiesValue(t *testing.T) {
	cache := NewMemoryCache(0)
	buf := []byte("abc")
	cache.Set("k", buf, time.Minute)
	buf[0] = 'x'

	val, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), val)
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCache(0).(*memoryCache)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("shortlived", []byte("value"), time.Second)
	_, ok := c.Get("shortlived")
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("shortlived")
	assert.False(t, ok, "expected key to be expired")

	assert.Equal(t, 1, c.deleteExpired())
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 0, stats.CurrentSize)
}

func TestMemoryCache_DeleteClearStats(t *testing.T) {
	cache := NewMemoryCache(0)
	cache.Set("a", []byte("1"), time.Minute)
	cache.Set("b", []byte("2"), time.Minute)

	cache.Delete("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)
	_, ok = cache.Get("b")
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().CurrentSize)
}

func TestMemoryCache_StopIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	s, ok := cache.(Stopper)
	require.True(t, ok)
	s.Stop()
	s.Stop()
}

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()
	cache.Set("k", []byte("v"), time.Minute)
	_, ok := cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, CacheStats{}, cache.Stats())
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir, zerolog.Nop())
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("catalog:/etc/enigma2", []byte(`[{"ref":"x"}]`), time.Minute)
	val, ok := c.Get("catalog:/etc/enigma2")
	require.True(t, ok)
	assert.JSONEq(t, `[{"ref":"x"}]`, string(val))
	assert.Equal(t, 1, c.Stats().CurrentSize)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("catalog:/etc/enigma2")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestDiskCache_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(c.path("k"), []byte("{not json"), 0o600))
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", []byte("fresh"), time.Minute)
	val, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), val)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache_ClearOnlyOwnFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir, zerolog.Nop())
	require.NoError(t, err)
	other := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))

	c.Set("a", []byte("1"), time.Minute)
	c.Clear()

	assert.Equal(t, 0, c.Stats().CurrentSize)
	assert.FileExists(t, other)
}

func TestNew_Backends(t *testing.T) {
	c, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &noOpCache{}, c)

	c, err = New(Config{Backend: BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memoryCache{}, c)

	c, err = New(Config{Backend: BackendDisk, Dir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &DiskCache{}, c)

	_, err = New(Config{Backend: "memcached"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Backend: BackendDisk}, zerolog.Nop())
	assert.Error(t, err)
}
