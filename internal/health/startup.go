// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/e2epg/internal/config"
	"github.com/ManuGH/e2epg/internal/fsutil"
	xglog "github.com/ManuGH/e2epg/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts.
// The data directory is created when missing.
func PerformStartupChecks(cfg config.Config) error {
	logger := xglog.WithComponent("startup-check")
	logger.Info().Str(xglog.FieldEvent, "startup.checks_begin").Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkConfinedPaths(cfg); err != nil {
		return fmt.Errorf("path check failed: %w", err)
	}
	checkBouquetDir(logger, cfg.Bouquets.Dir)

	if cfg.OpenWebIF.BaseURL == "" {
		logger.Warn().
			Str(xglog.FieldEvent, "startup.live_source_disabled").
			Msg("openWebIF.baseURL not configured; fallback tiers that need the receiver are skipped")
	}

	logger.Info().Str(xglog.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %w)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(xglog.FieldEvent, "startup.data_dir_ok").Str(xglog.FieldPath, path).Msg("data directory is writable")
	return nil
}

// checkConfinedPaths rejects relative state paths that leave the data
// directory. Absolute paths are the operator's explicit choice.
func checkConfinedPaths(cfg config.Config) error {
	for field, p := range map[string]string{
		"mapping.path": cfg.Mapping.Path,
		"store.path":   cfg.Store.Path,
		"feed.path":    cfg.Feed.Path,
	} {
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		if _, err := fsutil.ConfineRelPath(cfg.DataDir, p); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// checkBouquetDir only warns: the receiver may mount it after start.
func checkBouquetDir(logger zerolog.Logger, dir string) {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		logger.Warn().Err(err).Str(xglog.FieldEvent, "startup.bouquet_dir_missing").Str(xglog.FieldPath, dir).Msg("bouquet directory not readable; map runs will fail")
	case !info.IsDir():
		logger.Warn().Str(xglog.FieldEvent, "startup.bouquet_dir_invalid").Str(xglog.FieldPath, dir).Msg("bouquet path is not a directory")
	default:
		logger.Info().Str(xglog.FieldEvent, "startup.bouquet_dir_ok").Str(xglog.FieldPath, dir).Msg("bouquet directory found")
	}
}
