package talent

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// ReportNames labels name search rows in metrics.
const ReportNames = "names"

// NotFound is the id column of a name search row without candidates.
const NotFound = "[not-found]"

// PersonName is one spelling of an author name to search for.
type PersonName struct {
	First string
	Last  string
}

// NameQuery is one parsed name search input line:
// names<TAB>first<TAB>last<TAB>industry, where names is a ';' separated
// list of "First Last" spellings with '_' standing for a space.
type NameQuery struct {
	Index     int
	IndexText string
	Names     []PersonName
	Raw       string
	FirstName string
	LastName  string
	Industry  string
}

// ParseNameQuery parses one non-blank input line.
func ParseNameQuery(index int, line string) NameQuery {
	cols := splitColumns(line)
	for len(cols) < 4 {
		cols = append(cols, "")
	}
	q := NameQuery{
		Index:     index,
		IndexText: IndexText(index),
		Raw:       cols[0],
		FirstName: cols[1],
		LastName:  cols[2],
		Industry:  cols[3],
	}
	for _, full := range strings.Split(cols[0], ";") {
		full = strings.TrimSpace(full)
		if full == "" {
			continue
		}
		first, last, _ := strings.Cut(full, " ")
		q.Names = append(q.Names, PersonName{
			First: strings.ReplaceAll(first, "_", " "),
			Last:  strings.ReplaceAll(strings.TrimSpace(last), "_", " "),
		})
	}
	return q
}

// Query builds the author search query matching any of the names.
func (q NameQuery) Query() string {
	parts := make([]string, 0, len(q.Names))
	for _, n := range q.Names {
		parts = append(parts, fmt.Sprintf("(AUTHFIRST(%s) AND AUTHLASTNAME(%s))", n.First, n.Last))
	}
	return strings.Join(parts, " OR ")
}

// CacheKey names the cached search result of q.
func (q NameQuery) CacheKey() string {
	return fmt.Sprintf("full-name-%05d-%s-%s.json", q.Index, q.FirstName, q.LastName)
}

// NameSearch resolves author names to Scopus author ids.
type NameSearch struct {
	API   API
	Store cache.Store
	// Concurrency bounds the searches in flight. Zero means one.
	Concurrency   int
	HighWaterMark int

	Logger  *zerolog.Logger
	Metrics *metrics.Registry
}

func (s *NameSearch) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}

// Run reads name queries from in and writes one row per candidate, or a
// single NotFound row for a query without results, to out. Searches run
// concurrently, so rows are grouped per query but queries may complete in
// any order; the index column identifies the input line.
func (s *NameSearch) Run(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	index := 0
	queries := stream.Map(NonBlank(stream.Lines(in)), func(_ context.Context, line string) (NameQuery, error) {
		index++
		return ParseNameQuery(index, line), nil
	}, stream.WithName("parse"))

	res := resource[NameQuery, *scopus.SearchResponse[scopus.AuthorEntry]]{
		name: scopus.EndpointAuthorSearch,
		key:  NameQuery.CacheKey,
		fetch: func(ctx context.Context, q NameQuery) (*scopus.SearchResponse[scopus.AuthorEntry], []byte, error) {
			r, err := s.API.AuthorSearch(ctx, scopus.SearchOptions{Query: q.Query(), View: "STANDARD"})
			if err != nil {
				return nil, nil, err
			}
			return r, r.Raw, nil
		},
		decode: scopus.DecodeAuthorSearch,
	}

	searched := stream.MergeMap(queries, func(ctx context.Context, q NameQuery) (stream.Source[NameResult], error) {
		return stream.Lazy(func(ctx context.Context) (NameResult, error) {
			return s.search(ctx, res, q), nil
		}), nil
	},
		stream.WithConcurrency(max(1, s.Concurrency)),
		stream.WithHighWaterMark(s.HighWaterMark),
		stream.WithName("name-search"),
		stream.WithLogger(*s.logger()),
		stream.WithMetrics(s.Metrics),
	)

	results, persist := stream.Tee(searched, stream.WithHighWaterMark(s.HighWaterMark))
	done := make(chan error, 1)
	go func() {
		done <- stream.Pipe(ctx, persist, func(ctx context.Context, r NameResult) error {
			var err error
			switch {
			case r.Cached:
				return nil
			case r.Err != nil:
				err = s.Store.PutError(ctx, r.Query.CacheKey(), r.Query.Index, r.Err)
			default:
				err = s.Store.Put(ctx, r.Query.CacheKey(), r.Raw)
			}
			if err != nil {
				s.logger().Error().Err(err).Int("index", r.Query.Index).Msg("cache write failed")
			}
			return nil
		})
	}()

	rows := stream.FlatMap(results, func(_ context.Context, r NameResult) (stream.Source[Row], error) {
		return stream.FromSlice(r.Rows()), nil
	}, stream.WithName("rows"))

	n, err := WriteCSV(ctx, rows, out, ReportNames, s.Metrics)
	if err != nil {
		cancel()
	}
	if perr := <-done; perr != nil && err == nil {
		err = perr
	}
	return n, err
}

// NameResult is the outcome of one name search.
type NameResult struct {
	Query  NameQuery
	Cached bool
	Body   *scopus.SearchResponse[scopus.AuthorEntry]
	Raw    []byte
	Err    error
}

func (s *NameSearch) search(ctx context.Context, res resource[NameQuery, *scopus.SearchResponse[scopus.AuthorEntry]], q NameQuery) NameResult {
	l := s.logger().With().Int("index", q.Index).Str("resource", res.name).Logger()
	r := NameResult{Query: q}
	if len(q.Names) == 0 {
		r.Err = stderrors.New("the names are empty")
		l.Warn().Err(r.Err).Msg("error on loading")
		return r
	}

	l.Debug().Str("query", q.Query()).Msg("loading")
	r.Body, r.Raw, r.Cached, r.Err = res.load(l.WithContext(ctx), s.Store, q)
	if r.Err != nil {
		l.Warn().Err(r.Err).Msg("error on loading")
		return r
	}
	l.Debug().Bool("cached", r.Cached).Msg("loaded")
	return r
}

// Rows flattens r into one row per candidate author.
func (r NameResult) Rows() []Row {
	extra := func(row Row) Row {
		return append(row,
			Field{"names", r.Query.Raw},
			Field{"first_name_en", r.Query.FirstName},
			Field{"last_name_en", r.Query.LastName},
			Field{"industry", r.Query.Industry},
		)
	}
	index := strconv.Itoa(r.Query.Index)

	var found []scopus.AuthorEntry
	if r.Err == nil && r.Body != nil && r.Body.Results.Total() > 0 {
		found = scopus.Found(r.Body.Results.Entry)
	}
	if len(found) == 0 {
		return []Row{extra(Row{
			{"id", NotFound},
			{"index", index},
			{"surname", ""},
			{"given_name", ""},
			{"initials", ""},
			{"document_count", ""},
		})}
	}

	rows := make([]Row, 0, len(found))
	for _, e := range found {
		rows = append(rows, extra(Row{
			{"id", e.AuthorID()},
			{"index", index},
			{"surname", e.PreferredName.Surname},
			{"given_name", e.PreferredName.GivenName},
			{"initials", e.PreferredName.Initials},
			{"document_count", e.DocumentCount},
		}))
	}
	return rows
}
