package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/logger"
	"github.com/national-talent-atm/data-retrieval/internal/talent"
)

var talentCmd = &cobra.Command{
	Use:   "talent <config-name>",
	Short: "Generate the talent report for a list of Scopus author ids",
	Long: `Generate the talent report for the author ids listed one per line in
<target>/<config-name>.txt. Extra TAB separated columns are copied into the
report. The result is written to
<target>/output/<config-name>/<config-name>-talent-full-result.csv.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTalent(cmd.Context(), app, args[0])
	},
}

var namesCmd = &cobra.Command{
	Use:   "names <config-name>",
	Short: "Search Scopus author ids for a list of names",
	Long: `Search author ids for the names listed in <target>/<config-name>.txt,
one line per person:

  First_Part Last;Other Spelling<TAB>first<TAB>last<TAB>industry

The result is written to <target>/output/<config-name>/<config-name>-result.csv.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNames(cmd.Context(), app, args[0])
	},
}

func init() {
	rootCmd.AddCommand(talentCmd, namesCmd)
}

// report is a pipeline run reading from an input list and writing CSV.
type report func(ctx context.Context, in io.Reader, out io.Writer) (int, error)

func runTalent(ctx context.Context, a *App, name string) error {
	paths := talent.TalentPaths(a.Config.Target, name)
	return runReport(ctx, a, talent.ReportTalent, name, paths, func(client talent.API, store cache.Store) report {
		g := &talent.Generator{
			API:           client,
			Store:         store,
			HighWaterMark: a.Config.Pipeline.HighWaterMark,
			Logger:        reportLogger(ctx, talent.ReportTalent, name),
			Metrics:       a.Metrics,
		}
		return g.Run
	})
}

func runNames(ctx context.Context, a *App, name string) error {
	paths := talent.NamesPaths(a.Config.Target, name)
	return runReport(ctx, a, talent.ReportNames, name, paths, func(client talent.API, store cache.Store) report {
		s := &talent.NameSearch{
			API:           client,
			Store:         store,
			Concurrency:   a.Config.Pipeline.Concurrency,
			HighWaterMark: a.Config.Pipeline.HighWaterMark,
			Logger:        reportLogger(ctx, talent.ReportNames, name),
			Metrics:       a.Metrics,
		}
		return s.Run
	})
}

// runReport opens the input list and the cache for one named report, runs
// the pipeline built by build and writes the result file.
func runReport(ctx context.Context, a *App, kind, name string, paths talent.Paths, build func(talent.API, cache.Store) report) error {
	l := logger.FromContext(ctx).With().Str("report", kind).Str("config", name).Logger()

	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	in, err := os.Open(paths.Input)
	if err != nil {
		return fmt.Errorf("open input list: %w", err)
	}
	defer in.Close()

	store, err := a.Store(name, paths)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	l.Info().Str("input", paths.Input).Str("result", paths.Result).Msg("report started")
	start := time.Now()
	run := build(client, store)
	n, err := a.WriteReport(paths.Result, func(w io.Writer) (int, error) {
		return run(ctx, in, w)
	})
	if err != nil {
		l.Error().Err(err).Int("rows", n).Msg("report failed")
		return err
	}
	l.Info().Int("rows", n).Dur("took", time.Since(start)).Msg("report written")
	return nil
}
