// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ManuGH/e2epg/internal/config"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/persistence/sqlite"
	"github.com/ManuGH/e2epg/internal/store"
	"github.com/ManuGH/e2epg/internal/telemetry"
	"github.com/ManuGH/e2epg/internal/version"
)

// cli carries the global flags and output streams shared by all commands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "e2epg",
		Short:         "Map Enigma2 services to XMLTV channels and import their EPG",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.logLevel != "" {
				if _, err := zerolog.ParseLevel(c.logLevel); err != nil {
					return fmt.Errorf("invalid --log-level %q", c.logLevel)
				}
			}
			if c.logFormat != xglog.FormatJSON && c.logFormat != xglog.FormatConsole {
				return fmt.Errorf("invalid --log-format %q: use json or console", c.logFormat)
			}
			c.configureLogging(c.logLevel)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config file (YAML); defaults to $E2EPG_DATA_DIR/config.yaml when present")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", xglog.FormatJSON, "log output format: json or console")

	root.AddCommand(
		c.newJobCmd("map", "Match bouquet services against the feed and save the mapping"),
		c.newJobCmd("import", "Merge feed programmes into the event store"),
		c.newServeCmd(),
		c.newFingerprintCmd(),
		c.newChannelsCmd(),
		c.newStoreCmd(),
		c.newConfigCmd(),
		c.newVersionCmd(),
	)
	return root
}

// resolveConfigPath prefers --config, then config.yaml in the data directory.
func (c *cli) resolveConfigPath() string {
	if p := strings.TrimSpace(c.configPath); p != "" {
		return p
	}
	if dir := os.Getenv("E2EPG_DATA_DIR"); dir != "" {
		p := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadConfig loads and validates the configuration, then reconfigures the
// logger with the effective level.
func (c *cli) loadConfig() (config.Config, *config.Loader, error) {
	loader := config.NewLoader(c.resolveConfigPath(), version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, nil, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.configureLogging(cfg.LogLevel)
	return cfg, loader, nil
}

// configureLogging sends logs to stderr so command output stays on stdout.
func (c *cli) configureLogging(level string) {
	xglog.Configure(xglog.Config{
		Level:   level,
		Format:  c.logFormat,
		Output:  c.stderr,
		Service: "e2epg",
		Version: version.Version,
	})
}

// startTelemetry installs the tracer provider; the returned func flushes it.
func (c *cli) startTelemetry(ctx context.Context, cfg config.Config) (func(), error) {
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "e2epg",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger := xglog.WithComponent("cli")
			logger.Warn().Err(err).Str(xglog.FieldEvent, "telemetry.shutdown_failed").Msg("telemetry shutdown failed")
		}
	}, nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	path := cfg.InDataDir(cfg.Store.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	sc := sqlite.DefaultConfig()
	if d := cfg.Store.BusyTimeout.D(); d > 0 {
		sc.BusyTimeout = d
	}
	return store.Open(ctx, path, sc)
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(c.stdout, "e2epg %s\n", version.String())
			return err
		},
	}
}
