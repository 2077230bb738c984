// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/e2epg/internal/config"
)

const redacted = "***"

func (c *cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(c.newConfigValidateCmd(), c.newConfigDumpCmd(), c.newConfigInitCmd())
	return cmd
}

func (c *cli) newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and environment",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := c.resolveConfigPath()
			if _, _, err := c.loadConfig(); err != nil {
				return err
			}
			if path == "" {
				path = "built-in defaults and environment"
			}
			_, err := fmt.Fprintf(c.stdout, "%s is valid\n", path)
			return err
		},
	}
}

func (c *cli) newConfigDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			redactSecrets(&cfg)
			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(out)
			return err
		},
	}
}

func (c *cli) newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if c.configPath == "" {
				return errors.New("--config is required")
			}
			if _, err := os.Stat(c.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", c.configPath)
			}
			if err := config.NewManager(c.configPath).Save(config.Default()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(c.stdout, "wrote %s\n", c.configPath)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func redactSecrets(cfg *config.Config) {
	if cfg.Cache.Redis.Password != "" {
		cfg.Cache.Redis.Password = redacted
	}
	if cfg.OpenWebIF.Password != "" {
		cfg.OpenWebIF.Password = redacted
	}
}
