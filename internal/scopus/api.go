package scopus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointAuthor       = "author"
	EndpointMetrics      = "metrics"
	EndpointScopusSearch = "scopus-search"
	EndpointAuthorSearch = "author-search"
)

// DefaultMetricTypes are the SciVal metrics requested by the talent report.
var DefaultMetricTypes = []string{
	"AcademicCorporateCollaboration",
	"AcademicCorporateCollaborationImpact",
	"Collaboration",
	"CitationCount",
	"CitationsPerPublication",
	"CollaborationImpact",
	"CitedPublications",
	"FieldWeightedCitationImpact",
	"HIndices",
	"ScholarlyOutput",
	"PublicationsInTopJournalPercentiles",
	"OutputsInTopCitationPercentiles",
}

// AuthorOptions are the author retrieval query parameters.
type AuthorOptions struct {
	View  string // LIGHT, STANDARD, ENHANCED, METRICS, ...
	Field string
}

// AuthorRetrieval fetches one author profile.
func (c *Client) AuthorRetrieval(ctx context.Context, id string, opts AuthorOptions) (*AuthorResponse, error) {
	if id == "" {
		return nil, errors.ErrEmptyID
	}
	q := url.Values{}
	setIf(q, "view", opts.View)
	setIf(q, "field", opts.Field)

	body, err := c.get(ctx, EndpointAuthor, "content/author/author_id/"+url.PathEscape(id), q)
	if err != nil {
		return nil, err
	}
	return DecodeAuthor(body)
}

// MetricsOptions are the SciVal author metrics query parameters.
type MetricsOptions struct {
	YearRange            string // 3yrs, 5yrs, 10yrs, ...
	ByYear               bool
	IncludeSelfCitations *bool
	IncludedDocs         []string
	SubjectAreaFilterURI string
}

// SciValAuthorMetrics fetches metricTypes for the given authors.
func (c *Client) SciValAuthorMetrics(ctx context.Context, ids, metricTypes []string, opts MetricsOptions) (*MetricsResponse, error) {
	if len(ids) == 0 || ids[0] == "" {
		return nil, errors.ErrEmptyID
	}
	if len(metricTypes) == 0 {
		metricTypes = DefaultMetricTypes
	}
	q := url.Values{}
	q.Set("authors", strings.Join(ids, ","))
	q.Set("metricTypes", strings.Join(metricTypes, ","))
	q.Set("byYear", strconv.FormatBool(opts.ByYear))
	setIf(q, "yearRange", opts.YearRange)
	setIf(q, "subjectAreaFilterURI", opts.SubjectAreaFilterURI)
	if opts.IncludeSelfCitations != nil {
		q.Set("includeSelfCitations", strconv.FormatBool(*opts.IncludeSelfCitations))
	}
	if len(opts.IncludedDocs) > 0 {
		q.Set("includedDocs", strings.Join(opts.IncludedDocs, ","))
	}

	body, err := c.get(ctx, EndpointMetrics, "analytics/scival/author/metrics", q)
	if err != nil {
		return nil, err
	}
	return DecodeMetrics(body)
}

// SearchOptions are the Scopus and author search query parameters.
type SearchOptions struct {
	Query string
	View  string // STANDARD or COMPLETE
	Field string
	Sort  string
	Date  string
	Subj  string
	Start int
	Count int
}

func (o SearchOptions) values() url.Values {
	q := url.Values{}
	q.Set("query", o.Query)
	setIf(q, "view", o.View)
	setIf(q, "field", o.Field)
	setIf(q, "sort", o.Sort)
	setIf(q, "date", o.Date)
	setIf(q, "subj", o.Subj)
	if o.Start > 0 {
		q.Set("start", strconv.Itoa(o.Start))
	}
	if o.Count > 0 {
		q.Set("count", strconv.Itoa(o.Count))
	}
	return q
}

// ScopusSearch runs one page of a document search.
func (c *Client) ScopusSearch(ctx context.Context, opts SearchOptions) (*SearchResponse[Document], error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("scopus search: %w", errors.ErrEmptyID)
	}
	body, err := c.get(ctx, EndpointScopusSearch, "content/search/scopus", opts.values())
	if err != nil {
		return nil, err
	}
	return DecodeSearch(body)
}

// AuthorSearch runs one page of an author search.
func (c *Client) AuthorSearch(ctx context.Context, opts SearchOptions) (*SearchResponse[AuthorEntry], error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("author search: %w", errors.ErrEmptyID)
	}
	body, err := c.get(ctx, EndpointAuthorSearch, "content/search/author", opts.values())
	if err != nil {
		return nil, err
	}
	return DecodeAuthorSearch(body)
}

// ScopusSearchAll pages through every result of a document search,
// requesting the next page only when the previous one is consumed.
func (c *Client) ScopusSearchAll(opts SearchOptions) stream.Source[Document] {
	if opts.Count <= 0 {
		opts.Count = 25
	}
	var (
		page []Document
		done bool
	)
	next := func(ctx context.Context) (Document, bool, error) {
		for len(page) == 0 {
			if done {
				return Document{}, false, nil
			}
			resp, err := c.ScopusSearch(ctx, opts)
			if err != nil {
				return Document{}, false, err
			}
			entries := resp.Results.Entry
			opts.Start += len(entries)
			page = Found(entries)
			if len(entries) == 0 || opts.Start >= resp.Results.Total() {
				done = true
			}
		}
		d := page[0]
		page = page[1:]
		return d, true, nil
	}
	return stream.FromFunc(next, nil)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
