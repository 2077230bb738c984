// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/e2epg/internal/epg"
	"github.com/ManuGH/e2epg/internal/jobs"
)

func (c *cli) newFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <name>...",
		Short: "Show the fingerprint of channel names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			n := jobs.NewNormalizer(cfg)
			tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
			for _, name := range args {
				fp := n.Fingerprint(name)
				if fp == "" {
					fp = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\n", name, fp)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels <feed>",
		Short: "List the channels of an XMLTV feed with their fingerprints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			idx := epg.LoadIndex(cmd.Context(), args[0], jobs.NewNormalizer(cfg), jobs.IndexOptions(cfg))
			if err := idx.Err(); err != nil && idx.Len() == 0 {
				return fmt.Errorf("read feed %s: %w", args[0], err)
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFINGERPRINTS")
			for _, ch := range idx.Channels() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.ID, ch.DisplayName, strings.Join(ch.Aliases, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "\n%d channels, %d index keys\n", len(idx.Channels()), idx.Len())
			return idx.Err()
		},
	}
}
