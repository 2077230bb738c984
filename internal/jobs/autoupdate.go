// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/e2epg/internal/config"
	xglog "github.com/ManuGH/e2epg/internal/log"
)

// AutoUpdater triggers an import when the last successful one is too old.
type AutoUpdater struct {
	runner *Runner
	state  *StateFile
	config func() config.Config
	clock  func() time.Time
	logger zerolog.Logger
}

// NewAutoUpdater reads Import.AutoUpdate, CheckInterval and MaxAge from cfg on
// every check.
func NewAutoUpdater(runner *Runner, state *StateFile, cfg func() config.Config) *AutoUpdater {
	return &AutoUpdater{
		runner: runner,
		state:  state,
		config: cfg,
		clock:  time.Now,
		logger: xglog.WithComponent("autoupdate"),
	}
}

// Run checks once immediately and then every check interval until ctx ends.
func (a *AutoUpdater) Run(ctx context.Context) error {
	for {
		a.Check()
		interval := a.config().Import.CheckInterval.D()
		if interval <= 0 {
			interval = time.Hour
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Check triggers an import when auto-update is enabled and due. It reports
// whether a run was started.
func (a *AutoUpdater) Check() bool {
	cfg := a.config()
	if !cfg.Import.AutoUpdate {
		return false
	}
	st, err := a.state.Load()
	if err != nil {
		a.logger.Warn().Err(err).Str(xglog.FieldEvent, "autoupdate.state_unreadable").Msg("treating import as never run")
	}
	age := a.clock().Sub(st.LastImport)
	if !st.LastImport.IsZero() && age < cfg.Import.MaxAge.D() {
		return false
	}

	run, err := a.runner.Trigger(KindImport)
	if errors.Is(err, ErrRunInProgress) {
		a.logger.Debug().Str(xglog.FieldEvent, "autoupdate.busy").Msg("run in progress, retrying at next check")
		return false
	}
	if err != nil {
		a.logger.Warn().Err(err).Str(xglog.FieldEvent, "autoupdate.trigger_failed").Msg("could not start import")
		return false
	}
	a.logger.Info().
		Str(xglog.FieldEvent, "autoupdate.triggered").
		Str(xglog.FieldRunID, run.ID).
		Time("last_import", st.LastImport).
		Msg("scheduled import started")
	return true
}
