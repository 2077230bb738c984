// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/e2epg/internal/log"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// ConfigHolder serves the current configuration and swaps it atomically on
// a successful reload. A failed reload keeps the previous configuration.
type ConfigHolder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader

	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   zerolog.Logger

	listenersMu sync.Mutex
	listeners   []chan<- Config
}

// NewConfigHolder wraps an initial configuration.
func NewConfigHolder(initial Config, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		debounce: DefaultDebounce,
		logger:   xglog.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *ConfigHolder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the configuration again.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(prev, next)
	h.notify(next)
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// Subscribe registers ch for reload notifications. Sends never block; a full
// channel misses the update.
func (h *ConfigHolder) Subscribe(ch chan<- Config) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *ConfigHolder) notify(cfg Config) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str(xglog.FieldEvent, "config.listener_skip").Msg("listener channel full")
		}
	}
}

// StartWatcher reloads when the config file changes until ctx ends. The
// parent directory is watched so editors that replace the file are seen.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str(xglog.FieldEvent, "config.watcher_disabled").Msg("no config file to watch")
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = w

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str(xglog.FieldPath, abs).
		Msg("watching config file")
	go h.watchLoop(ctx, w, abs)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, w *fsnotify.Watcher, path string) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "config.file_changed").
				Str("op", ev.Op.String()).
				Msg("config file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(h.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).
						Str(xglog.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher, if any.
func (h *ConfigHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

func (h *ConfigHolder) logChanges(prev, next Config) {
	if prev.LogLevel != next.LogLevel {
		h.logger.Info().Str("old", prev.LogLevel).Str("new", next.LogLevel).Msg("config changed: logLevel")
	}
	if prev.Feed.Preset != next.Feed.Preset || prev.Feed.URL != next.Feed.URL {
		h.logger.Info().Str("preset", next.Feed.Preset).Str("url", next.Feed.URL).Msg("config changed: feed")
	}
	if prev.Mapping.Refresh != next.Mapping.Refresh {
		h.logger.Info().Bool("old", prev.Mapping.Refresh).Bool("new", next.Mapping.Refresh).Msg("config changed: mapping.refresh")
	}
	if prev.Import.AutoUpdate != next.Import.AutoUpdate {
		h.logger.Info().Bool("old", prev.Import.AutoUpdate).Bool("new", next.Import.AutoUpdate).Msg("config changed: import.autoUpdate")
	}
	if prev.OpenWebIF.BaseURL != next.OpenWebIF.BaseURL {
		h.logger.Info().Str("new", maskURL(next.OpenWebIF.BaseURL)).Msg("config changed: openWebIF.baseURL")
	}
}

func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	return "***redacted***"
}
