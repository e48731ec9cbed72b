// Package integration runs the report pipelines end to end against a fake
// Elsevier API served by httptest.
package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/internal/testutil"
)

// fakeElsevier answers the report endpoints and records when each request
// arrived.
type fakeElsevier struct {
	mu       sync.Mutex
	arrivals []time.Time
	// fail makes author retrieval of these ids answer 404.
	fail map[string]bool
}

func (f *fakeElsevier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.arrivals = append(f.arrivals, time.Now())
	f.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", "20000")
	w.Header().Set("X-RateLimit-Remaining", "19999")
	q := r.URL.Query()
	switch {
	case strings.HasPrefix(r.URL.Path, "/content/author/author_id/"):
		id := strings.TrimPrefix(r.URL.Path, "/content/author/author_id/")
		if f.fail[id] {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"service-error":{"status":{"statusCode":"RESOURCE_NOT_FOUND"}}}`)
			return
		}
		fmt.Fprintf(w, `{"author-retrieval-response":[{"coredata":{"dc:identifier":"AUTHOR_ID:%s","document-count":"4"},
"author-profile":{"preferred-name":{"surname":"S%s","given-name":"G%s"}},"h-index":"1"}]}`, id, id, id)
	case r.URL.Path == "/analytics/scival/author/metrics":
		fmt.Fprintf(w, `{"results":[{"author":{"id":%s},"metrics":[{"metricType":"ScholarlyOutput","value":4}]}]}`, q.Get("authors"))
	case r.URL.Path == "/content/search/scopus":
		fmt.Fprint(w, `{"search-results":{"opensearch:totalResults":"1","entry":[{"dc:title":"T","authkeywords":"streams"}]}}`)
	case r.URL.Path == "/content/search/author":
		fmt.Fprint(w, `{"search-results":{"opensearch:totalResults":"1","entry":[
{"dc:identifier":"AUTHOR_ID:900","document-count":"2","preferred-name":{"surname":"Doe","given-name":"Jane"}}]}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeElsevier) requests() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.arrivals...)
}

func newServer(t *testing.T) (*fakeElsevier, string) {
	t.Helper()
	f := &fakeElsevier{fail: map[string]bool{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func newClient(t *testing.T, baseURL string, mutate func(*scopus.Config)) *scopus.Client {
	t.Helper()
	nop := zerolog.Nop()
	c := scopus.Config{Keys: []string{"k"}, BaseURL: baseURL, Rate: 1000, Logger: &nop}
	if mutate != nil {
		mutate(&c)
	}
	client, err := scopus.New(c)
	testutil.AssertNoError(t, err)
	return client
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
