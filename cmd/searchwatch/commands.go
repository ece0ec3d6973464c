package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"searchwatch/internal/app"
	"searchwatch/internal/config"
	"searchwatch/internal/storage"
	"searchwatch/pkg/logx"
)

const defaultConfigPath = "./config.json"

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "searchwatch",
		Short:         "Watch a search API for new results and notify on growth",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config (json or yaml)")

	path := func() string { return cfgPath }
	root.AddCommand(
		newRunCmd(path),
		newOnceCmd(path),
		newPlanCmd(path),
		newStateCmd(path),
		newHistoryCmd(path),
		newInitCmd(path),
	)
	return root
}

func newRunCmd(path func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(path())
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				if a.Err() != nil {
					reason = app.StopFatalError
				}
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = a.Stop(stopCtx, reason)
			return a.Err()
		},
	}
}

func newOnceCmd(path func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(path())
			if err != nil {
				return err
			}
			rep, err := a.RunOnce(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cycle %s: %s\n", rep.ID, rep.Outcome())
			if rep.Skipped != "" {
				fmt.Fprintf(out, "skipped: %s\n", rep.Skipped)
				return err
			}
			fmt.Fprintf(out, "total: %d (previous %d, chunks ok %d, failed %d)\n",
				rep.Result.Total, rep.Change.Previous, rep.Result.Succeeded, rep.Result.Failed)
			if rep.Change.Fired {
				fmt.Fprintf(out, "increase: +%d, notified: %t\n", rep.Change.Event.Delta, rep.Change.Notified)
			}
			return err
		},
	}
}

func newPlanCmd(path func() string) *cobra.Command {
	var showURL bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the chunks and queries of the next cycle without fetching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(path()).Load()
			if err != nil {
				return err
			}
			plan, err := app.PlanCycle(cfg, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(plan) == 0 {
				fmt.Fprintln(out, "no search parameters configured; a cycle would be skipped")
				return nil
			}
			for i, p := range plan {
				fmt.Fprintf(out, "%3d  %s .. %s\n", i+1, p.Chunk.Start.Format(time.RFC3339), p.Chunk.End.Format(time.RFC3339))
				if showURL && p.URL != "" {
					fmt.Fprintf(out, "     %s\n", p.URL)
				} else {
					fmt.Fprintf(out, "     %s\n", p.Query)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showURL, "url", false, "print full request URLs instead of queries")
	return cmd
}

func newStateCmd(path func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted total",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the persisted total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, path(), func(ctx context.Context, st storage.Store) error {
				v, err := st.LoadTotal(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	})

	var value int64
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the persisted total (default 0)",
		Long:  "Overwrite the persisted total. A running daemon keeps its in-memory total until it is restarted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if value < 0 {
				return errors.New("--value must be >= 0")
			}
			return withStore(cmd, path(), func(ctx context.Context, st storage.Store) error {
				if err := st.SaveTotal(ctx, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "total reset to %d\n", value)
				return nil
			})
		},
	}
	reset.Flags().Int64Var(&value, "value", 0, "total to store")
	cmd.AddCommand(reset)
	return cmd
}

func newHistoryCmd(path func() string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cycles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, path(), func(ctx context.Context, st storage.Store) error {
				recs, err := st.ListCycles(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tTOOK\tTOTAL\tPREVIOUS\tOK\tFAILED\tNOTIFIED\tNOTE")
				for _, r := range recs {
					note := r.Skipped
					if r.Error != "" {
						note = strings.TrimSpace(note + " " + r.Error)
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%t\t%s\n",
						r.StartedAt.Local().Format(time.DateTime),
						(time.Duration(r.DurationMS) * time.Millisecond).String(),
						r.Total, r.Previous, r.Succeeded, r.Failed, r.Notified, note)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of cycles to show")
	return cmd
}

func newInitCmd(path func() string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := path()
			if _, err := os.Stat(p); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", p)
			}
			b, err := config.Encode(p, config.Example())
			if err != nil {
				return err
			}
			if err := os.WriteFile(p, b, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

// withStore opens the configured store for fn and closes it afterwards.
func withStore(cmd *cobra.Command, cfgPath string, fn func(ctx context.Context, st storage.Store) error) error {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg, logx.NewWriter(cmd.ErrOrStderr(), "warn"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), st)
}
