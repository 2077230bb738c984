// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/e2epg/internal/api"
	"github.com/ManuGH/e2epg/internal/config"
	"github.com/ManuGH/e2epg/internal/daemon"
	"github.com/ManuGH/e2epg/internal/health"
	"github.com/ManuGH/e2epg/internal/jobs"
	xglog "github.com/ManuGH/e2epg/internal/log"
	"github.com/ManuGH/e2epg/internal/store"
	"github.com/ManuGH/e2epg/internal/version"
)

// newJobCmd runs one map or import job in the foreground.
func (c *cli) newJobCmd(name, short string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := jobs.ParseKind(name)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			flush, err := c.startTelemetry(ctx, cfg)
			if err != nil {
				return err
			}
			defer flush()

			var st *store.Store
			if kind == jobs.KindImport {
				if st, err = openStore(ctx, cfg); err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
			}

			cfgFn := func() config.Config { return cfg }
			runner := jobs.NewRunner(jobs.NewService(jobs.Options{Config: cfgFn, Store: st}), func() time.Duration {
				return cfg.Import.Timeout.D()
			})
			defer func() { _ = runner.Close(context.WithoutCancel(ctx)) }()

			run, runErr := runner.RunSync(ctx, kind)
			if asJSON {
				if err := writeRunJSON(c.stdout, run); err != nil {
					return err
				}
			} else if run.ID != "" {
				printRun(c.stdout, run)
			}
			if runErr != nil {
				return runErr
			}
			if run.State == jobs.StateFailed {
				return fmt.Errorf("%s run failed: %s", run.Kind, run.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the finished run as JSON")
	return cmd
}

func writeRunJSON(w io.Writer, run jobs.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

func printRun(w io.Writer, run jobs.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	fmt.Fprintf(tw, "run\t%s\n", run.ID)
	fmt.Fprintf(tw, "kind\t%s\n", run.Kind)
	fmt.Fprintf(tw, "state\t%s\n", run.State)
	if run.FinishedAt != nil {
		fmt.Fprintf(tw, "duration\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", run.Error)
	}
	sum := run.Summary
	if sum == nil {
		return
	}
	if sum.Feed != "" {
		fmt.Fprintf(tw, "feed\t%s\n", sum.Feed)
	}
	if sum.FetchError != "" {
		fmt.Fprintf(tw, "fetch error\t%s (previous feed used)\n", sum.FetchError)
	}
	switch run.Kind {
	case jobs.KindMap:
		fmt.Fprintf(tw, "services\t%d\n", sum.Services)
		fmt.Fprintf(tw, "channels\t%d\n", sum.Channels)
		fmt.Fprintf(tw, "refs\t%d\n", sum.MappingRefs)
		if rep := sum.Report; rep != nil {
			fmt.Fprintf(tw, "methods\t%s\n", rep.String())
			fmt.Fprintf(tw, "unmatched\t%d\n", len(rep.Unmatched))
			for _, u := range rep.Unmatched {
				fmt.Fprintf(tw, "\t%s\t%s\n", u.Name, u.Ref)
			}
		}
	case jobs.KindImport:
		fmt.Fprintf(tw, "events\t%d\n", sum.Events)
		if sum.Pruned > 0 {
			fmt.Fprintf(tw, "pruned\t%d\n", sum.Pruned)
		}
	}
}

func (c *cli) newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API with scheduled imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, loader, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := health.PerformStartupChecks(cfg); err != nil {
				return err
			}
			flush, err := c.startTelemetry(ctx, cfg)
			if err != nil {
				return err
			}
			defer flush()

			holder := config.NewConfigHolder(cfg, loader)
			defer holder.Stop()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}

			svc := jobs.NewService(jobs.Options{Config: holder.Get, Store: st})
			runner := jobs.NewRunner(svc, func() time.Duration { return holder.Get().Import.Timeout.D() })
			updater := jobs.NewAutoUpdater(runner, svc.State(), holder.Get)

			srv := api.New(api.Deps{
				Config:  holder.Get,
				Runner:  runner,
				Service: svc,
				Store:   st,
				Version: version.Version,
			})
			if listen == "" {
				listen = cfg.API.ListenAddr
			}
			mgr, err := daemon.NewManager(daemon.DefaultServerConfig(listen), srv.Handler())
			if err != nil {
				_ = st.Close()
				return err
			}
			mgr.RegisterShutdownHook("store", func(context.Context) error { return st.Close() })

			logger := xglog.WithComponent("cli")
			logger.Info().
				Str(xglog.FieldEvent, "daemon.starting").
				Str("addr", listen).
				Str("data_dir", cfg.DataDir).
				Bool("auto_update", cfg.Import.AutoUpdate).
				Msg("starting e2epg daemon")
			return daemon.NewApp(mgr, holder, runner, updater).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides api.listenAddr)")
	return cmd
}
