package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagemon/pagemon"
)

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check every target once and exit",
		Long: `Checks every target in registry order. Per-target failures are logged
and recorded; only an unreadable or malformed registry fails the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, g)
		},
	}
}

func runOnce(cmd *cobra.Command, g *globals) error {
	mon, _, err := g.monitor(cmd)
	if err != nil {
		return err
	}
	defer mon.Close()

	sum, err := mon.RunOnce(cmd.Context())
	if err != nil {
		if errors.Is(err, pagemon.ErrMalformedRegistry) {
			return err
		}
		return fmt.Errorf("run interrupted: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d checked, %d new, %d changed, %d unchanged, %d failed, %d notify failures\n",
		sum.RunID, sum.Checked, sum.FirstSeen, sum.Changed, sum.Unchanged, sum.Failed, sum.NotifyFailed)
	return nil
}

func newWatchCmd(g *globals) *cobra.Command {
	var (
		cronSpec   string
		runOnStart bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run on a cron schedule until interrupted",
		Example: `  pagemon watch --cron "*/30 * * * *"
  pagemon watch --cron @hourly --run-on-start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cron") {
				cfg.Schedule.Cron = cronSpec
			}
			if cmd.Flags().Changed("run-on-start") {
				cfg.Schedule.RunOnStart = runOnStart
			}
			if cfg.Schedule.Cron == "" {
				return errors.New("watch: no schedule (use --cron or schedule.cron)")
			}
			mon, err := pagemon.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			defer mon.Close()
			return mon.Watch(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cronSpec, "cron", "", "cron schedule, e.g. \"*/30 * * * *\" or @hourly")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run once immediately")
	return cmd
}
