package talent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// Candidate is one author matching a lookup query.
type Candidate struct {
	Query         string
	ID            string
	Surname       string
	GivenName     string
	DocumentCount string
}

// Lookup searches authors interactively. A query that arrives while an
// earlier one is still being searched supersedes it: the earlier search
// is cancelled and none of its candidates are emitted.
type Lookup struct {
	API API
	// Count caps the candidates per query. Zero uses the API default.
	Count int

	Logger  *zerolog.Logger
	Metrics *metrics.Registry
}

// Run maps a sequence of queries to the candidates of the latest one.
// A failed search is logged and produces no candidates.
func (l *Lookup) Run(queries stream.Source[string]) stream.Source[Candidate] {
	logger := log.Logger
	if l.Logger != nil {
		logger = *l.Logger
	}

	return stream.SwitchMap(NonBlank(queries), func(_ context.Context, q string) (stream.Source[Candidate], error) {
		query := LookupQuery(q)
		found := stream.Lazy(func(ctx context.Context) ([]Candidate, error) {
			r, err := l.API.AuthorSearch(ctx, scopus.SearchOptions{Query: query, View: "STANDARD", Count: l.Count})
			if err != nil {
				return nil, fmt.Errorf("lookup %q: %w", q, err)
			}
			var out []Candidate
			for _, e := range scopus.Found(r.Results.Entry) {
				out = append(out, Candidate{
					Query:         q,
					ID:            e.AuthorID(),
					Surname:       e.PreferredName.Surname,
					GivenName:     e.PreferredName.GivenName,
					DocumentCount: e.DocumentCount,
				})
			}
			return out, nil
		})
		return stream.FlatMap(found, func(_ context.Context, cs []Candidate) (stream.Source[Candidate], error) {
			return stream.FromSlice(cs), nil
		}), nil
	},
		stream.WithName("lookup"),
		stream.WithLogger(logger),
		stream.WithMetrics(l.Metrics),
	)
}

// LookupQuery turns free text into an author search query. Text that
// already contains a field such as AUTHLASTNAME( is used as is; otherwise
// the last word is the surname and the rest the first name.
func LookupQuery(text string) string {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "(") {
		return text
	}
	words := strings.Fields(text)
	switch len(words) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("AUTHLASTNAME(%s)", words[0])
	default:
		last := len(words) - 1
		return fmt.Sprintf("AUTHFIRST(%s) AND AUTHLASTNAME(%s)", strings.Join(words[:last], " "), words[last])
	}
}
