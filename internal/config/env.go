// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix starts every recognised environment variable.
const EnvPrefix = "E2EPG_"

// envBinding ties one environment variable to a config field.
type envBinding struct {
	Key       string
	Path      string
	Sensitive bool
	apply     func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func duration(dst func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = Duration(d)
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst(c) = out
		return nil
	}
}

var envBindings = []envBinding{
	{Key: "E2EPG_DATA_DIR", Path: "dataDir", apply: str(func(c *Config) *string { return &c.DataDir })},
	{Key: "E2EPG_LOG_LEVEL", Path: "logLevel", apply: str(func(c *Config) *string { return &c.LogLevel })},
	{Key: "E2EPG_BOUQUET_DIR", Path: "bouquets.dir", apply: str(func(c *Config) *string { return &c.Bouquets.Dir })},
	{Key: "E2EPG_CACHE_BACKEND", Path: "cache.backend", apply: str(func(c *Config) *string { return &c.Cache.Backend })},
	{Key: "E2EPG_CACHE_TTL", Path: "cache.ttl", apply: duration(func(c *Config) *Duration { return &c.Cache.TTL })},
	{Key: "E2EPG_REDIS_ADDR", Path: "cache.redis.addr", apply: str(func(c *Config) *string { return &c.Cache.Redis.Addr })},
	{Key: "E2EPG_REDIS_PASSWORD", Path: "cache.redis.password", Sensitive: true, apply: str(func(c *Config) *string { return &c.Cache.Redis.Password })},
	{Key: "E2EPG_FEED_PRESET", Path: "feed.preset", apply: str(func(c *Config) *string { return &c.Feed.Preset })},
	{Key: "E2EPG_FEED_URL", Path: "feed.url", apply: str(func(c *Config) *string { return &c.Feed.URL })},
	{Key: "E2EPG_FEED_TIMEZONE", Path: "feed.timezone", apply: str(func(c *Config) *string { return &c.Feed.Timezone })},
	{Key: "E2EPG_FEED_RETRIES", Path: "feed.retries", apply: integer(func(c *Config) *int { return &c.Feed.Retries })},
	{Key: "E2EPG_FEED_TIMEOUT", Path: "feed.timeout", apply: duration(func(c *Config) *Duration { return &c.Feed.Timeout })},
	{Key: "E2EPG_FEED_SUFFIXES", Path: "feed.regionalSuffixes", apply: list(func(c *Config) *[]string { return &c.Feed.RegionalSuffixes })},
	{Key: "E2EPG_MAPPING_PATH", Path: "mapping.path", apply: str(func(c *Config) *string { return &c.Mapping.Path })},
	{Key: "E2EPG_MAPPING_REFRESH", Path: "mapping.refresh", apply: boolean(func(c *Config) *bool { return &c.Mapping.Refresh })},
	{Key: "E2EPG_MATCH_SIMILARITY", Path: "matching.similarity", apply: float(func(c *Config) *float64 { return &c.Matching.Similarity })},
	{Key: "E2EPG_IMPORT_TIMEOUT", Path: "import.timeout", apply: duration(func(c *Config) *Duration { return &c.Import.Timeout })},
	{Key: "E2EPG_IMPORT_BATCH_SIZE", Path: "import.batchSize", apply: integer(func(c *Config) *int { return &c.Import.BatchSize })},
	{Key: "E2EPG_AUTO_UPDATE", Path: "import.autoUpdate", apply: boolean(func(c *Config) *bool { return &c.Import.AutoUpdate })},
	{Key: "E2EPG_STORE_PATH", Path: "store.path", apply: str(func(c *Config) *string { return &c.Store.Path })},
	{Key: "E2EPG_OWI_BASE", Path: "openWebIF.baseURL", apply: str(func(c *Config) *string { return &c.OpenWebIF.BaseURL })},
	{Key: "E2EPG_OWI_USER", Path: "openWebIF.username", apply: str(func(c *Config) *string { return &c.OpenWebIF.Username })},
	{Key: "E2EPG_OWI_PASS", Path: "openWebIF.password", Sensitive: true, apply: str(func(c *Config) *string { return &c.OpenWebIF.Password })},
	{Key: "E2EPG_API_LISTEN", Path: "api.listenAddr", apply: str(func(c *Config) *string { return &c.API.ListenAddr })},
	{Key: "E2EPG_TELEMETRY_ENABLED", Path: "telemetry.enabled", apply: boolean(func(c *Config) *bool { return &c.Telemetry.Enabled })},
	{Key: "E2EPG_OTLP_ENDPOINT", Path: "telemetry.endpoint", apply: str(func(c *Config) *string { return &c.Telemetry.Endpoint })},
}

// EnvKeys lists the recognised environment variables.
func EnvKeys() []string {
	keys := make([]string, 0, len(envBindings))
	for _, b := range envBindings {
		keys = append(keys, b.Key)
	}
	sort.Strings(keys)
	return keys
}

// applyEnv overrides cfg from lookup. Empty values are ignored; unparsable
// values are reported and leave the field unchanged.
func (l *Loader) applyEnv(cfg *Config) []error {
	var errs []error
	for _, b := range envBindings {
		v, ok := l.lookup(b.Key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		v = strings.TrimSpace(v)
		if err := b.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Key, err))
			continue
		}
		l.consumed[b.Key] = struct{}{}

		ev := l.logger.Debug().Str("key", b.Key).Str("field", b.Path).Str("source", "environment")
		if b.Sensitive {
			ev = ev.Bool("sensitive", true)
		} else {
			ev = ev.Str("value", v)
		}
		ev.Msg("using environment variable")
	}
	return errs
}

// unknownEnv returns E2EPG_* variables that no binding consumes.
func (l *Loader) unknownEnv(environ []string) []string {
	known := make(map[string]struct{}, len(envBindings))
	for _, b := range envBindings {
		known[b.Key] = struct{}{}
	}
	var unknown []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
