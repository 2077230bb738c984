// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const diskSuffix = ".cache.json"

// DiskCache stores one JSON document per key below Dir. Files are replaced
// atomically; a truncated or foreign file reads as a miss.
type DiskCache struct {
	dir    string
	logger zerolog.Logger
	stats  counters
	now    func() time.Time
}

type diskRecord struct {
	Key     string    `json:"key"`
	Expires time.Time `json:"expires"`
	Value   []byte    `json:"value"`
}

// NewDiskCache creates dir if needed.
func NewDiskCache(dir string, logger zerolog.Logger) (*DiskCache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("disk cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("disk cache: create %s: %w", dir, err)
	}
	return &DiskCache{dir: dir, logger: logger, now: time.Now}, nil
}

func (c *DiskCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+diskSuffix)
}

func (c *DiskCache) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn().Err(err).Str("key", key).Msg("disk cache read failed")
		}
		c.stats.misses.Add(1)
		return nil, false
	}

	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Key != key {
		c.stats.misses.Add(1)
		return nil, false
	}
	if c.now().After(rec.Expires) {
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return rec.Value, true
}

func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) {
	data, err := json.Marshal(diskRecord{Key: key, Expires: c.now().Add(ttl), Value: value})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("disk cache encode failed")
		return
	}
	if err := renameio.WriteFile(c.path(key), data, 0o600); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("disk cache write failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *DiskCache) Delete(key string) {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn().Err(err).Str("key", key).Msg("disk cache delete failed")
	}
}

func (c *DiskCache) Clear() {
	for _, p := range c.files() {
		_ = os.Remove(p)
	}
}

func (c *DiskCache) Stats() CacheStats {
	return c.stats.snapshot(len(c.files()))
}

// Prune removes expired and unreadable entries.
func (c *DiskCache) Prune() int {
	now := c.now()
	removed := 0
	for _, p := range c.files() {
		data, err := os.ReadFile(p)
		var rec diskRecord
		if err == nil && json.Unmarshal(data, &rec) == nil && !now.After(rec.Expires) {
			continue
		}
		if os.Remove(p) == nil {
			removed++
		}
	}
	c.stats.evictions.Add(int64(removed))
	return removed
}

func (c *DiskCache) files() []string {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+diskSuffix))
	if err != nil {
		return nil
	}
	return matches
}
