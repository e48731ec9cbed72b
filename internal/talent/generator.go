package talent

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// ReportTalent labels talent report rows in metrics.
const ReportTalent = "talent"

// Generator produces the talent report from a list of author ids.
type Generator struct {
	API   API
	Store cache.Store
	// Extract shapes joined authors into rows. Defaults to Extract.
	Extract ExtractFunc
	// Metrics selects the SciVal request. YearRange defaults to 10yrs.
	MetricsOptions scopus.MetricsOptions
	// HighWaterMark lets the fan-out branches run ahead of each other.
	HighWaterMark int

	Logger  *zerolog.Logger
	Metrics *metrics.Registry
}

func (g *Generator) logger() *zerolog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return &log.Logger
}

// Run reads author ids from in, one per line with optional extra TAB
// separated columns, and writes the report to out. Every fetched body or
// failure is persisted to the store before Run returns. Entries with a
// failed or empty resource are logged and left out of the report.
func (g *Generator) Run(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	extract := g.Extract
	if extract == nil {
		extract = Extract
	}
	metricsOpts := g.MetricsOptions
	if metricsOpts.YearRange == "" {
		metricsOpts.YearRange = "10yrs"
	}

	entries := ParseEntries(stream.Lines(in))
	entries = stream.Peek(entries, func(e Entry) {
		g.logger().Info().Int("index", e.Index).Str("id", e.ID).Msg("start")
	})
	branches := stream.MultiTee(entries, 3, stream.WithHighWaterMark(g.HighWaterMark), stream.WithName("fan-out"))

	authors, authorsDone := fetchEntries(ctx, g, branches[0], g.authorResource())
	metricsSrc, metricsDone := fetchEntries(ctx, g, branches[1], g.metricsResource(metricsOpts))
	searches, searchesDone := fetchEntries(ctx, g, branches[2], g.searchResource())

	joined := stream.Zip3(authors, metricsSrc, searches)
	complete := stream.Filter(joined, func(_ context.Context, j Joined) (bool, error) {
		if !Complete(j) {
			g.logger().Warn().Int("index", j.V1.Index).Str("id", j.V1.ID).Msg("ignored, there are some errors")
			return false, nil
		}
		return true, nil
	}, stream.WithName("complete"))
	rows := stream.Map(complete, func(_ context.Context, j Joined) (Row, error) {
		row, err := extract(j)
		if err == nil {
			g.logger().Info().Int("index", j.V1.Index).Str("id", j.V1.ID).Msg("finish")
		}
		return row, err
	}, stream.WithName("extract"))

	n, err := WriteCSV(ctx, rows, out, ReportTalent, g.Metrics)
	if err != nil {
		cancel()
	}

	errs := []error{err}
	for _, done := range []<-chan error{authorsDone, metricsDone, searchesDone} {
		if perr := <-done; perr != nil && err == nil {
			errs = append(errs, perr)
		}
	}
	return n, stderrors.Join(errs...)
}

func (g *Generator) authorResource() resource[Entry, *scopus.AuthorResponse] {
	return resource[Entry, *scopus.AuthorResponse]{
		name: scopus.EndpointAuthor,
		key:  func(e Entry) string { return AuthorKey(e.ID) },
		fetch: func(ctx context.Context, e Entry) (*scopus.AuthorResponse, []byte, error) {
			r, err := g.API.AuthorRetrieval(ctx, e.ID, scopus.AuthorOptions{View: "ENHANCED"})
			if err != nil {
				return nil, nil, err
			}
			return r, r.Raw, nil
		},
		decode: scopus.DecodeAuthor,
	}
}

func (g *Generator) metricsResource(opts scopus.MetricsOptions) resource[Entry, *scopus.MetricsResponse] {
	return resource[Entry, *scopus.MetricsResponse]{
		name: scopus.EndpointMetrics,
		key:  func(e Entry) string { return MetricsKey(e.ID) },
		fetch: func(ctx context.Context, e Entry) (*scopus.MetricsResponse, []byte, error) {
			r, err := g.API.SciValAuthorMetrics(ctx, []string{e.ID}, scopus.DefaultMetricTypes, opts)
			if err != nil {
				return nil, nil, err
			}
			return r, r.Raw, nil
		},
		decode: scopus.DecodeMetrics,
	}
}

func (g *Generator) searchResource() resource[Entry, *scopus.SearchResponse[scopus.Document]] {
	return resource[Entry, *scopus.SearchResponse[scopus.Document]]{
		name: scopus.EndpointScopusSearch,
		key:  func(e Entry) string { return SearchKey(e.ID) },
		fetch: func(ctx context.Context, e Entry) (*scopus.SearchResponse[scopus.Document], []byte, error) {
			r, err := g.API.ScopusSearch(ctx, scopus.SearchOptions{
				Query: fmt.Sprintf("AU-ID(%s)", e.ID),
				View:  "COMPLETE",
				Sort:  "coverDate,-title",
			})
			if err != nil {
				return nil, nil, err
			}
			return r, r.Raw, nil
		},
		decode: scopus.DecodeSearch,
	}
}

// Cache keys of the three talent resources.
func AuthorKey(id string) string  { return fmt.Sprintf("au-id-%s.json", id) }
func MetricsKey(id string) string { return fmt.Sprintf("metrics-au-id-%s.json", id) }
func SearchKey(id string) string  { return fmt.Sprintf("scopus-search-au-id-%s.json", id) }
