package talent

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/national-talent-atm/data-retrieval/internal/scopus"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func authorJSON(id string) string {
	return fmt.Sprintf(`{"author-retrieval-response":[{
  "coredata":{"dc:identifier":"AUTHOR_ID:%s","document-count":"10","cited-by-count":"5","citation-count":"7"},
  "subject-areas":{"subject-area":[
    {"@abbrev":"COMP","@code":"1700","$":"Computer Science"},
    {"@abbrev":"ENGI","@code":"2200","$":"Engineering"}]},
  "author-profile":{
    "preferred-name":{"surname":"Doe","given-name":"Jane"},
    "publication-range":{"@start":"2010","@end":"2024"},
    "classificationgroup":{"classifications":{"@type":"ASJC","classification":[
      {"@frequency":"2","$":"1700"},{"@frequency":"8","$":"2200"},{"@frequency":"1","$":"9999"}]}},
    "affiliation-current":{"affiliation":{"ip-doc":{"afdispname":"Chulalongkorn University"}}}},
  "h-index":"4","coauthor-count":"11"}]}`, id)
}

func metricsJSON(id string) string {
	return fmt.Sprintf(`{"results":[{"author":{"id":%s},"metrics":[
  {"metricType":"ScholarlyOutput","value":10},
  {"metricType":"FieldWeightedCitationImpact","value":1.25},
  {"metricType":"Collaboration","values":[{"collabType":"International collaboration","value":2}]}]}]}`, id)
}

const searchJSON = `{"search-results":{"opensearch:totalResults":"2","entry":[
  {"dc:title":"A","authkeywords":"Streams | Go"},
  {"dc:title":"B","authkeywords":"streams"}]}}`

const emptySearchJSON = `{"search-results":{"opensearch:totalResults":"0","entry":[{"@_fa":"true","error":"Result set was empty"}]}}`

// fakeAPI serves canned bodies and counts calls per endpoint and id.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	authorErr   map[string]error
	metricsErr  map[string]error
	emptySearch map[string]bool
	authors     func(ctx context.Context, query string) (string, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:       make(map[string]int),
		authorErr:   make(map[string]error),
		metricsErr:  make(map[string]error),
		emptySearch: make(map[string]bool),
	}
}

func (f *fakeAPI) count(endpoint, id string) {
	f.mu.Lock()
	f.calls[endpoint+"/"+id]++
	f.mu.Unlock()
}

func (f *fakeAPI) Calls(endpoint, id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint+"/"+id]
}

func (f *fakeAPI) AuthorRetrieval(_ context.Context, id string, opts scopus.AuthorOptions) (*scopus.AuthorResponse, error) {
	f.count(scopus.EndpointAuthor, id)
	if opts.View != "ENHANCED" {
		return nil, fmt.Errorf("unexpected view %q", opts.View)
	}
	if err := f.authorErr[id]; err != nil {
		return nil, err
	}
	return scopus.DecodeAuthor([]byte(authorJSON(id)))
}

func (f *fakeAPI) SciValAuthorMetrics(_ context.Context, ids, _ []string, opts scopus.MetricsOptions) (*scopus.MetricsResponse, error) {
	f.count(scopus.EndpointMetrics, ids[0])
	if opts.YearRange != "10yrs" || opts.ByYear {
		return nil, fmt.Errorf("unexpected options %+v", opts)
	}
	if err := f.metricsErr[ids[0]]; err != nil {
		return nil, err
	}
	return scopus.DecodeMetrics([]byte(metricsJSON(ids[0])))
}

func (f *fakeAPI) ScopusSearch(_ context.Context, opts scopus.SearchOptions) (*scopus.SearchResponse[scopus.Document], error) {
	id := strings.TrimSuffix(strings.TrimPrefix(opts.Query, "AU-ID("), ")")
	f.count(scopus.EndpointScopusSearch, id)
	if opts.View != "COMPLETE" || opts.Sort != "coverDate,-title" {
		return nil, fmt.Errorf("unexpected options %+v", opts)
	}
	if f.emptySearch[id] {
		return scopus.DecodeSearch([]byte(emptySearchJSON))
	}
	return scopus.DecodeSearch([]byte(searchJSON))
}

func (f *fakeAPI) AuthorSearch(ctx context.Context, opts scopus.SearchOptions) (*scopus.SearchResponse[scopus.AuthorEntry], error) {
	f.count(scopus.EndpointAuthorSearch, opts.Query)
	body, err := f.authors(ctx, opts.Query)
	if err != nil {
		return nil, err
	}
	return scopus.DecodeAuthorSearch([]byte(body))
}

// readCSV strips the byte order mark and parses the report.
func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	if !bytes.HasPrefix(data, bom) {
		t.Fatalf("report does not start with a byte order mark: %q", data)
	}
	r := csv.NewReader(bytes.NewReader(data[len(bom):]))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

// column returns the values of the named column, header excluded.
func column(t *testing.T, records [][]string, name string) []string {
	t.Helper()
	idx := -1
	for i, h := range records[0] {
		if h == name {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("no column %q in %v", name, records[0])
	}
	var out []string
	for _, rec := range records[1:] {
		out = append(out, rec[idx])
	}
	return out
}
