// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/e2epg/internal/persistence/sqlite"
)

func (c *cli) newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Maintain the event store",
	}
	cmd.AddCommand(c.newStorePruneCmd(), c.newStoreVerifyCmd())
	return cmd
}

func (c *cli) newStorePruneCmd() *cobra.Command {
	var before string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove events that ended before a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			cutoff, err := parseCutoff(before, time.Now(), cfg.Store.Retention.D())
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, err := st.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.stdout, "pruned %d events that ended before %s\n", n, cutoff.Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "cutoff as RFC 3339 time or a duration ago (default: store.retention)")
	return cmd
}

// parseCutoff accepts an RFC 3339 time, a date, or a duration before now.
// An empty value means retention before now.
func parseCutoff(v string, now time.Time, retention time.Duration) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return now.Add(-retention), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, now.Location()); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --before %q: want RFC 3339 time, YYYY-MM-DD or duration", v)
}

func (c *cli) newStoreVerifyCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the event store's SQLite integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode = strings.ToLower(strings.TrimSpace(mode))
			if mode != sqlite.CheckQuick && mode != sqlite.CheckFull {
				return fmt.Errorf("invalid mode %q: use quick or full", mode)
			}
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.InDataDir(cfg.Store.Path)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("event store %s: %w", path, err)
			}

			issues, err := sqlite.VerifyIntegrity(cmd.Context(), path, mode)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				fmt.Fprintf(c.stdout, "%s: corruption detected\n", path)
				for _, issue := range issues {
					fmt.Fprintf(c.stdout, "  - %s\n", issue)
				}
				return fmt.Errorf("%d integrity issues in %s", len(issues), path)
			}
			_, err = fmt.Fprintf(c.stdout, "%s: ok (%s)\n", path, mode)
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", sqlite.CheckQuick, "verification mode: quick or full")
	return cmd
}
