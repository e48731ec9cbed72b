package talent

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/testutil"
)

func TestParseNameQuery(t *testing.T) {
	q := ParseNameQuery(3, "Jane_Mary Doe;J. Doe_Smith\tJane\tDoe\tEnergy")

	testutil.AssertEqual(t, q.IndexText, "     3")
	testutil.AssertEqual(t, q.Industry, "Energy")
	testutil.AssertEqual(t, len(q.Names), 2)
	testutil.AssertEqual(t, q.Names[0], PersonName{First: "Jane Mary", Last: "Doe"})
	testutil.AssertEqual(t, q.Names[1], PersonName{First: "J.", Last: "Doe Smith"})
	testutil.AssertEqual(t, q.Query(),
		"(AUTHFIRST(Jane Mary) AND AUTHLASTNAME(Doe)) OR (AUTHFIRST(J.) AND AUTHLASTNAME(Doe Smith))")
	testutil.AssertEqual(t, q.CacheKey(), "full-name-00003-Jane-Doe.json")
}

func TestParseNameQueryShortLine(t *testing.T) {
	q := ParseNameQuery(1, "Jane Doe")
	testutil.AssertEqual(t, len(q.Names), 1)
	testutil.AssertEqual(t, q.FirstName, "")
	testutil.AssertEqual(t, q.Industry, "")
}

const janeDoeJSON = `{"search-results":{"opensearch:totalResults":"2","entry":[
  {"dc:identifier":"AUTHOR_ID:111","document-count":"40","preferred-name":{"surname":"Doe","given-name":"Jane","initials":"J."}},
  {"dc:identifier":"AUTHOR_ID:222","document-count":"3","preferred-name":{"surname":"Doe","given-name":"Jane M.","initials":"J.M."}}]}}`

func TestNameSearchRun(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	api := newFakeAPI()
	var inFlight, peak atomic.Int32
	api.authors = func(ctx context.Context, query string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		switch {
		case strings.Contains(query, "AUTHLASTNAME(Doe)"):
			return janeDoeJSON, nil
		case strings.Contains(query, "AUTHLASTNAME(Broken)"):
			return "", errors.New("search failed")
		default:
			return emptySearchJSON, nil
		}
	}

	dir := t.TempDir()
	store, err := cache.NewFileStore(cache.FileConfig{Dir: dir})
	testutil.AssertNoError(t, err)
	s := &NameSearch{API: api, Store: store, Concurrency: 3, Logger: nopLogger()}

	input := strings.Join([]string{
		"Jane Doe\tJane\tDoe\tIT",
		"Nobody Here\tNobody\tHere\tArts",
		"Bad Broken\tBad\tBroken\tEnergy",
		";\tNo\tNames\tMisc",
	}, "\n")

	var out bytes.Buffer
	n, err := s.Run(ctx, strings.NewReader(input), &out)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 5)
	if peak.Load() < 2 {
		t.Errorf("searches did not overlap, peak %d", peak.Load())
	}

	records := readCSV(t, out.Bytes())
	testutil.AssertSliceEqual(t, records[0][:6], []string{"id", "index", "surname", "given_name", "initials", "document_count"})

	var got []string
	ids, idx, industries := column(t, records, "id"), column(t, records, "index"), column(t, records, "industry")
	for i := range ids {
		got = append(got, idx[i]+":"+ids[i]+":"+industries[i])
	}
	sort.Strings(got)
	testutil.AssertSliceEqual(t, got, []string{
		"1:111:IT", "1:222:IT", "2:[not-found]:Arts", "3:[not-found]:Energy", "4:[not-found]:Misc",
	})

	// successful searches are cached, failures recorded
	for _, name := range []string{"full-name-00001-Jane-Doe.json", "full-name-00002-Nobody-Here.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not cached: %v", name, err)
		}
	}
	for _, name := range []string{"error-index-00003-full-name-00003-Bad-Broken.json", "error-index-00004-full-name-00004-No-Names.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not recorded: %v", name, err)
		}
	}

	// the rerun only searches what failed
	out.Reset()
	_, err = s.Run(ctx, strings.NewReader(input), &out)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, api.Calls("author-search", "(AUTHFIRST(Jane) AND AUTHLASTNAME(Doe))"), 1)
	testutil.AssertEqual(t, api.Calls("author-search", "(AUTHFIRST(Bad) AND AUTHLASTNAME(Broken))"), 2)
}
