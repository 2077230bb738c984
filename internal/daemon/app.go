// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/e2epg/internal/config"
	"github.com/ManuGH/e2epg/internal/jobs"
	xglog "github.com/ManuGH/e2epg/internal/log"
)

// App wires the config watcher, reload signal and auto-updater around the
// Manager. Holder, Runner and Updater are optional.
type App struct {
	Manager Manager
	Holder  *config.ConfigHolder
	Runner  *jobs.Runner
	Updater *jobs.AutoUpdater

	logger       zerolog.Logger
	reloadSignal os.Signal
}

// NewApp creates an App that reloads configuration on SIGHUP.
func NewApp(manager Manager, holder *config.ConfigHolder, runner *jobs.Runner, updater *jobs.AutoUpdater) *App {
	return &App{
		Manager:      manager,
		Holder:       holder,
		Runner:       runner,
		Updater:      updater,
		logger:       xglog.WithComponent("daemon"),
		reloadSignal: syscall.SIGHUP,
	}
}

// Run blocks until ctx ends or the server fails. The active run is cancelled
// during shutdown.
func (a *App) Run(ctx context.Context) error {
	if a.Manager == nil {
		return ErrMissingManager
	}
	if a.Runner != nil {
		a.Manager.RegisterShutdownHook("runner", a.Runner.Close)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.Holder != nil {
		if err := a.Holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applied := make(chan config.Config, 1)
		a.Holder.Subscribe(applied)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applied:
					a.apply(cfg)
				}
			}
		})
	}

	if a.Holder != nil && a.reloadSignal != nil {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, a.reloadSignal)
		g.Go(func() error {
			defer signal.Stop(sig)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sig:
					a.logger.Info().
						Str(xglog.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.Holder.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.Updater != nil {
		g.Go(func() error { return a.Updater.Run(ctx) })
	}

	g.Go(func() error { return a.Manager.Start(ctx) })
	return g.Wait()
}

// apply adopts the parts of a reloaded config that take effect immediately.
// Jobs read the holder at the start of each run.
func (a *App) apply(cfg config.Config) {
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}
	a.logger.Info().
		Str(xglog.FieldEvent, "config.applied").
		Str("log_level", cfg.LogLevel).
		Bool("auto_update", cfg.Import.AutoUpdate).
		Msg("configuration reloaded")
}
