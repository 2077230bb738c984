// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads e2epg configuration from YAML and E2EPG_* environment
// variables, validates it and keeps it current while the daemon runs.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "90s" in YAML.
type Duration time.Duration

// D returns the value as time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts duration strings and integer seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var secs int64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the complete configuration.
type Config struct {
	DataDir   string          `yaml:"dataDir"`
	LogLevel  string          `yaml:"logLevel"`
	Bouquets  BouquetsConfig  `yaml:"bouquets"`
	Cache     CacheConfig     `yaml:"cache"`
	Feed      FeedConfig      `yaml:"feed"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Matching  MatchingConfig  `yaml:"matching"`
	Import    ImportConfig    `yaml:"import"`
	Store     StoreConfig     `yaml:"store"`
	OpenWebIF OpenWebIFConfig `yaml:"openWebIF"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is set from the binary, never read from the file.
	Version string `yaml:"-"`
}

// BouquetsConfig locates the receiver's bouquet files.
type BouquetsConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern,omitempty"`
}

// CacheConfig selects the catalog cache backend.
type CacheConfig struct {
	Backend         string      `yaml:"backend"`
	Dir             string      `yaml:"dir,omitempty"`
	TTL             Duration    `yaml:"ttl"`
	CleanupInterval Duration    `yaml:"cleanupInterval,omitempty"`
	Redis           RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig addresses the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// FeedConfig selects and downloads the XMLTV feed.
type FeedConfig struct {
	Preset           string   `yaml:"preset"`
	URL              string   `yaml:"url,omitempty"`
	Path             string   `yaml:"path,omitempty"`
	Retries          int      `yaml:"retries"`
	Timeout          Duration `yaml:"timeout"`
	Pause            Duration `yaml:"pause"`
	MinBytes         int64    `yaml:"minBytes"`
	MaxBytes         int64    `yaml:"maxBytes,omitempty"`
	Timezone         string   `yaml:"timezone,omitempty"`
	RegionalSuffixes []string `yaml:"regionalSuffixes,omitempty"`
}

// MappingConfig locates the mapping and the manual alias table.
type MappingConfig struct {
	Path    string              `yaml:"path"`
	Refresh bool                `yaml:"refresh"`
	Aliases map[string][]string `yaml:"aliases,omitempty"`
}

// MatchingConfig overrides resolver thresholds and extends the junk list.
type MatchingConfig struct {
	Containment         float64  `yaml:"containment"`
	ContainmentMaxDelta int      `yaml:"containmentMaxDelta"` // 0 keeps the default
	Token               float64  `yaml:"token"`
	Similarity          float64  `yaml:"similarity"`
	ExtraJunkWords      []string `yaml:"extraJunkWords,omitempty"`
}

// ImportConfig tunes the merge pipeline and the auto-update schedule.
type ImportConfig struct {
	Timeout          Duration          `yaml:"timeout"`
	BatchSize        int               `yaml:"batchSize"`
	Window           Duration          `yaml:"window"`
	TitleLimit       int               `yaml:"titleLimit"`
	DescriptionLimit int               `yaml:"descriptionLimit"`
	Fallback         map[string]string `yaml:"fallback,omitempty"`
	AutoUpdate       bool              `yaml:"autoUpdate"`
	CheckInterval    Duration          `yaml:"checkInterval"`
	MaxAge           Duration          `yaml:"maxAge"`
}

// StoreConfig locates the SQLite event store.
type StoreConfig struct {
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busyTimeout"`
	Retention   Duration `yaml:"retention"`
}

// OpenWebIFConfig addresses the receiver's web interface.
type OpenWebIFConfig struct {
	BaseURL          string   `yaml:"baseURL,omitempty"`
	Username         string   `yaml:"username,omitempty"`
	Password         string   `yaml:"password,omitempty"`
	Timeout          Duration `yaml:"timeout"`
	RateLimit        float64  `yaml:"rateLimit"`
	Burst            int      `yaml:"burst"`
	FailureThreshold int      `yaml:"failureThreshold"`
	ResetTimeout     Duration `yaml:"resetTimeout"`
}

// APIConfig configures the control API.
type APIConfig struct {
	ListenAddr     string `yaml:"listenAddr"`
	TriggerPerHour int    `yaml:"triggerPerHour"`
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter,omitempty"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:  "/var/lib/e2epg",
		LogLevel: "info",
		Bouquets: BouquetsConfig{Dir: "/etc/enigma2"},
		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             Duration(time.Minute),
			CleanupInterval: Duration(5 * time.Minute),
		},
		Feed: FeedConfig{
			Preset:   "epgshare-pl",
			Retries:  3,
			Timeout:  Duration(120 * time.Second),
			Pause:    Duration(2 * time.Second),
			MinBytes: 1000,
		},
		Mapping: MappingConfig{Path: "iptv_mapping.json"},
		Matching: MatchingConfig{
			Containment:         0.65,
			ContainmentMaxDelta: 8,
			Token:               0.6,
			Similarity:          0.85,
		},
		Import: ImportConfig{
			Timeout:          Duration(30 * time.Minute),
			BatchSize:        5000,
			Window:           Duration(72 * time.Hour),
			TitleLimit:       240,
			DescriptionLimit: 2048,
			CheckInterval:    Duration(time.Hour),
			MaxAge:           Duration(24 * time.Hour),
		},
		Store: StoreConfig{
			Path:        "events.db",
			BusyTimeout: Duration(5 * time.Second),
			Retention:   Duration(24 * time.Hour),
		},
		OpenWebIF: OpenWebIFConfig{
			Timeout:          Duration(10 * time.Second),
			RateLimit:        10,
			Burst:            5,
			FailureThreshold: 5,
			ResetTimeout:     Duration(30 * time.Second),
		},
		API: APIConfig{
			ListenAddr:     ":8089",
			TriggerPerHour: 30,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			SamplingRate: 1,
		},
	}
}

// InDataDir resolves p against DataDir unless it is absolute.
func (c Config) InDataDir(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// StatePath is where run bookkeeping is persisted.
func (c Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}

// Location returns the feed time zone; an empty name is the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Feed.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Feed.Timezone)
}
