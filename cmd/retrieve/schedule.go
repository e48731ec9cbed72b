package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/national-talent-atm/data-retrieval/internal/logger"
	"github.com/national-talent-atm/data-retrieval/internal/talent"
	"github.com/national-talent-atm/data-retrieval/pkg/scheduling/scheduler"
)

var (
	scheduleReport  string
	scheduleNow     bool
	scheduleTimeout time.Duration
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <cron> <config-name>",
	Short: "Rerun a report on a cron schedule",
	Long: `Rerun a report on a cron schedule until interrupted. Only resources
missing from the cache are fetched again, so a rerun picks up entries that
failed before.

The schedule takes an optional seconds field and descriptors:
  retrieve schedule "0 30 2 * * *" physics
  retrieve schedule "@every 6h" --report names engineers`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchedule(cmd.Context(), app, args[0], args[1])
	},
}

func init() {
	flags := scheduleCmd.Flags()
	flags.StringVar(&scheduleReport, "report", talent.ReportTalent, "report to run: talent or names")
	flags.BoolVar(&scheduleNow, "now", false, "run once immediately before waiting for the schedule")
	flags.DurationVar(&scheduleTimeout, "timeout", 0, "abort a run after this long (0 means no limit)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(ctx context.Context, a *App, spec, name string) error {
	var run func(context.Context, *App, string) error
	switch scheduleReport {
	case talent.ReportTalent:
		run = runTalent
	case talent.ReportNames:
		run = runNames
	default:
		return fmt.Errorf("unknown report %q", scheduleReport)
	}
	// fail on a missing key now rather than at the first tick
	if _, err := a.Client(ctx); err != nil {
		return err
	}

	l := logger.WithComponent(logger.FromContext(ctx), "scheduler")
	s := scheduler.New(scheduler.Config{
		Timeout: scheduleTimeout,
		Logger:  &l,
		Metrics: a.Metrics,
	})
	job := scheduleReport + "/" + name
	if err := s.Schedule(job, spec, scheduler.JobFunc(func(ctx context.Context) error {
		return run(ctx, a, name)
	})); err != nil {
		return err
	}

	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()
	if scheduleNow {
		if err := s.RunNow(ctx, job); err != nil {
			l.Warn().Err(err).Str("job", job).Msg("initial run failed")
		}
	}
	for _, e := range s.Entries() {
		l.Info().Str("job", e.Name).Str("spec", e.Spec).Time("next", e.Next).Msg("waiting")
	}
	<-ctx.Done()
	return nil
}
