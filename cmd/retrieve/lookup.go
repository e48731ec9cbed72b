package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/national-talent-atm/data-retrieval/internal/logger"
	"github.com/national-talent-atm/data-retrieval/internal/talent"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

var lookupCount int

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up author ids interactively",
	Long: `Read author names or search queries from stdin, one per line, and
print the matching authors as TAB separated id, surname, given name and
document count. A line typed while the previous search is still running
replaces it.

Examples:
  retrieve lookup
  echo "Jane Doe" | retrieve lookup --count 5
  echo "AUTHLASTNAME(Doe) AND AFFIL(Chulalongkorn)" | retrieve lookup`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(cmd.Context(), app, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	lookupCmd.Flags().IntVar(&lookupCount, "count", 10, "maximum candidates per query")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(ctx context.Context, a *App, in io.Reader, out io.Writer) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	l := logger.WithComponent(logger.FromContext(ctx), "lookup")
	lookup := &talent.Lookup{API: client, Count: lookupCount, Logger: &l, Metrics: a.Metrics}

	w := bufio.NewWriter(out)
	defer w.Flush()
	return stream.ForEach(ctx, lookup.Run(stream.Lines(in)), func(_ context.Context, c talent.Candidate) error {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Surname, c.GivenName, c.DocumentCount); err != nil {
			return err
		}
		// interactive use: show each candidate as it arrives
		return w.Flush()
	})
}

