// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/e2epg/internal/fetch"
	"github.com/ManuGH/e2epg/internal/metrics"
	"github.com/ManuGH/e2epg/internal/validate"
)

var (
	logLevels     = []string{"trace", "debug", "info", "warn", "error"}
	cacheBackends = []string{"none", "memory", "disk", "redis"}
	exporters     = []string{"grpc", "http"}
)

// Validate checks cfg and returns a validate.ValidationError listing every
// problem.
func Validate(cfg Config) error {
	v := validate.New()

	v.NotEmpty("dataDir", cfg.DataDir)
	v.OneOf("logLevel", strings.ToLower(cfg.LogLevel), logLevels)
	v.NotEmpty("bouquets.dir", cfg.Bouquets.Dir)

	v.OneOf("cache.backend", cfg.Cache.Backend, cacheBackends)
	if cfg.Cache.Backend == "redis" {
		v.NotEmpty("cache.redis.addr", cfg.Cache.Redis.Addr)
	}
	if cfg.Cache.Backend != "none" {
		v.MinDuration("cache.ttl", cfg.Cache.TTL.D(), time.Second)
	}

	if _, err := fetch.ResolveSource(cfg.Feed.Preset, cfg.Feed.URL); err != nil {
		v.AddError("feed.preset", err.Error(), cfg.Feed.Preset)
	}
	if u := strings.TrimSpace(cfg.Feed.URL); strings.HasPrefix(u, "http") && u != "http://" && u != "https://" {
		v.URL("feed.url", u, []string{"http", "https"})
	}
	v.Range("feed.retries", cfg.Feed.Retries, 1, 20)
	v.MinDuration("feed.timeout", cfg.Feed.Timeout.D(), time.Second)
	v.Custom("feed.timezone", cfg.Feed.Timezone, func(any) error {
		_, err := cfg.Location()
		return err
	})

	v.NotEmpty("mapping.path", cfg.Mapping.Path)
	for label, names := range cfg.Mapping.Aliases {
		if strings.TrimSpace(label) == "" || len(names) == 0 {
			v.AddError("mapping.aliases", fmt.Sprintf("alias %q needs a label and at least one name", label), names)
		}
	}

	v.Fraction("matching.containment", cfg.Matching.Containment)
	v.Fraction("matching.token", cfg.Matching.Token)
	v.Fraction("matching.similarity", cfg.Matching.Similarity)
	v.NonNegative("matching.containmentMaxDelta", cfg.Matching.ContainmentMaxDelta)

	v.MinDuration("import.timeout", cfg.Import.Timeout.D(), time.Minute)
	v.Range("import.batchSize", cfg.Import.BatchSize, 1, 1_000_000)
	v.MinDuration("import.window", cfg.Import.Window.D(), time.Hour)
	v.Positive("import.titleLimit", cfg.Import.TitleLimit)
	v.Positive("import.descriptionLimit", cfg.Import.DescriptionLimit)
	if cfg.Import.AutoUpdate {
		v.MinDuration("import.checkInterval", cfg.Import.CheckInterval.D(), time.Minute)
		v.MinDuration("import.maxAge", cfg.Import.MaxAge.D(), time.Hour)
	}

	v.NotEmpty("store.path", cfg.Store.Path)

	if cfg.OpenWebIF.BaseURL != "" {
		v.URL("openWebIF.baseURL", cfg.OpenWebIF.BaseURL, []string{"http", "https"})
		v.Positive("openWebIF.burst", cfg.OpenWebIF.Burst)
		v.Positive("openWebIF.failureThreshold", cfg.OpenWebIF.FailureThreshold)
		if cfg.OpenWebIF.RateLimit <= 0 {
			v.AddError("openWebIF.rateLimit", "must be positive", cfg.OpenWebIF.RateLimit)
		}
	}

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.triggerPerHour", cfg.API.TriggerPerHour)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	if !v.IsValid() {
		metrics.IncConfigValidationError()
	}
	return v.Err()
}
