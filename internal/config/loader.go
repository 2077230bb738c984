// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	xglog "github.com/ManuGH/e2epg/internal/log"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	path     string
	version  string
	lookup   func(string) (string, bool)
	environ  func() []string
	consumed map[string]struct{}
	logger   zerolog.Logger
}

// NewLoader returns a loader for path; an empty path means environment only.
func NewLoader(path, version string) *Loader {
	return &Loader{
		path:     path,
		version:  version,
		lookup:   os.LookupEnv,
		environ:  os.Environ,
		consumed: make(map[string]struct{}),
		logger:   xglog.WithComponent("config"),
	}
}

// Path is the config file, if any.
func (l *Loader) Path() string { return l.path }

// Load parses the file strictly, applies the environment and validates.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := l.loadFile(l.path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if errs := l.applyEnv(&cfg); len(errs) > 0 {
		return cfg, fmt.Errorf("environment: %w", errors.Join(errs...))
	}
	for _, key := range l.unknownEnv(l.environ()) {
		l.logger.Warn().
			Str(xglog.FieldEvent, "config.unknown_env").
			Str("key", key).
			Msg("ignoring unknown environment variable")
	}

	if cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the operator chooses the config path
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}

	l.logger.Debug().
		Str(xglog.FieldEvent, "config.file_loaded").
		Str(xglog.FieldPath, path).
		Msg("configuration file loaded")
	return nil
}
