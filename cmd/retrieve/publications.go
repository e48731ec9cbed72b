package main

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/spf13/cobra"

	"github.com/national-talent-atm/data-retrieval/internal/logger"
	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

var (
	publicationsLimit    int
	publicationsPageSize int
)

var publicationsCmd = &cobra.Command{
	Use:   "publications QUERY",
	Short: "Dump the documents matching a Scopus search",
	Long: `Page through every document matching a Scopus search query and print
them as CSV. Pages are requested only as fast as rows are written.

Examples:
  retrieve publications "AU-ID(57194)"
  retrieve publications "AFFIL(Chulalongkorn) AND PUBYEAR > 2020" --limit 500 > docs.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublications(cmd.Context(), app, args[0], cmd.OutOrStdout())
	},
}

func init() {
	publicationsCmd.Flags().IntVar(&publicationsLimit, "limit", 0, "stop after this many documents (0 for all)")
	publicationsCmd.Flags().IntVar(&publicationsPageSize, "page-size", 25, "documents per request")
	rootCmd.AddCommand(publicationsCmd)
}

var publicationColumns = []string{"eid", "scopus_id", "title", "creator", "publication", "cover_date", "cited_by"}

func runPublications(ctx context.Context, a *App, query string, out io.Writer) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	l := logger.WithComponent(logger.FromContext(ctx), "publications")

	docs := client.ScopusSearchAll(scopus.SearchOptions{Query: query, Count: publicationsPageSize})
	if publicationsLimit > 0 {
		docs = stream.Limit(docs, publicationsLimit)
	}

	w := csv.NewWriter(out)
	if err := w.Write(publicationColumns); err != nil {
		return err
	}
	var n int
	err = stream.ForEach(ctx, docs, func(_ context.Context, d scopus.Document) error {
		n++
		return w.Write([]string{d.EID, d.Identifier, d.Title, d.Creator, d.PublicationName, d.CoverDate, d.CitedByCount})
	})
	w.Flush()
	if err != nil {
		return err
	}
	l.Info().Str("query", query).Int("documents", n).Msg("publications written")
	return w.Error()
}
