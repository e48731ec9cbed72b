package talent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/national-talent-atm/data-retrieval/internal/testutil"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

func TestLookupQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Doe", "AUTHLASTNAME(Doe)"},
		{"Jane Mary Doe", "AUTHFIRST(Jane Mary) AND AUTHLASTNAME(Doe)"},
		{"  AU-ID(123) ", "AU-ID(123)"},
		{"", ""},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, LookupQuery(tt.in), tt.want)
	}
}

func authorSearchJSON(id, surname string) string {
	return fmt.Sprintf(`{"search-results":{"opensearch:totalResults":"1","entry":[
  {"dc:identifier":"AUTHOR_ID:%s","document-count":"1","preferred-name":{"surname":"%s","given-name":"X"}}]}}`, id, surname)
}

func TestLookupLatestQueryWins(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	var slowCancelled atomic.Bool
	api := newFakeAPI()
	api.authors = func(ctx context.Context, query string) (string, error) {
		if strings.Contains(query, "Slow") {
			<-ctx.Done()
			slowCancelled.Store(true)
			return "", ctx.Err()
		}
		return authorSearchJSON("42", "Fast"), nil
	}

	queries := make(chan string)
	l := &Lookup{API: api, Logger: nopLogger()}
	out := l.Run(stream.FromChannel(queries))
	defer out.Close()

	go func() {
		queries <- "Jane Slow"
		time.Sleep(50 * time.Millisecond)
		queries <- "John Fast"
		close(queries)
	}()

	got, err := stream.ToSlice(ctx, out)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertEqual(t, got[0].ID, "42")
	testutil.AssertEqual(t, got[0].Query, "John Fast")
	testutil.AssertEqual(t, slowCancelled.Load(), true)
}

func TestLookupFailedSearchIsSkipped(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	api := newFakeAPI()
	api.authors = func(_ context.Context, query string) (string, error) {
		if strings.Contains(query, "Broken") {
			return "", fmt.Errorf("upstream 500")
		}
		return authorSearchJSON("7", "Ok"), nil
	}

	l := &Lookup{API: api, Logger: nopLogger()}
	got, err := stream.ToSlice(ctx, l.Run(stream.FromSlice([]string{"Broken", "", "Ok"})))
	testutil.AssertNoError(t, err)

	// switching cancels a search only when a newer query arrives first;
	// the last query always completes
	if len(got) == 0 || got[len(got)-1].ID != "7" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}
