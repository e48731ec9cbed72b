package integration

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/national-talent-atm/data-retrieval/internal/cache"
	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/internal/talent"
	"github.com/national-talent-atm/data-retrieval/internal/testutil"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/writer"
)

// TestTalentReportThroughAsyncWriter runs the talent generator with the
// real client, a compressed file cache and the asynchronous report writer.
func TestTalentReportThroughAsyncWriter(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	api, url := newServer(t)
	api.fail["3"] = true

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)
	paths := talent.TalentPaths(t.TempDir(), "physics")
	store, err := cache.NewFileStore(cache.FileConfig{Dir: paths.CacheDir, ErrorDir: paths.OutputDir, Compress: true, Metrics: m})
	testutil.AssertNoError(t, err)

	g := &talent.Generator{
		API:           newClient(t, url, func(c *scopus.Config) { c.Metrics = m }),
		Store:         store,
		HighWaterMark: 2,
		Logger:        nopLogger(),
		Metrics:       m,
	}

	sink := testutil.NewMockWriter()
	w := writer.NewWithConfig(sink, writer.Config{BufferSize: 64, Name: "report", Metrics: m})
	n, err := g.Run(ctx, strings.NewReader("1\n2\n3\n4\n"), w)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.Close())
	testutil.AssertEqual(t, n, 3)

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix([]byte(sink.String()), []byte("\ufeff"))))
	records, err := r.ReadAll()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(records), 4)
	var ids []string
	for _, rec := range records[1:] {
		ids = append(ids, rec[0])
	}
	testutil.AssertSliceEqual(t, ids, []string{"1", "2", "4"})

	testutil.AssertEqual(t, promtest.ToFloat64(m.ReportRows.WithLabelValues(talent.ReportTalent)), 3.0)
	if got := promtest.ToFloat64(m.WriterBytesWritten.WithLabelValues("report")); got != float64(len(sink.String())) {
		t.Errorf("writer bytes = %v, want %d", got, len(sink.String()))
	}

	// bodies are stored compressed, the failure as a readable record
	_, err = os.Stat(filepath.Join(paths.CacheDir, talent.AuthorKey("1")+".zst"))
	testutil.AssertNoError(t, err)
	rec, err := os.ReadFile(filepath.Join(paths.OutputDir, cache.ErrorKey(3, talent.AuthorKey("3"))))
	testutil.AssertNoError(t, err)
	if !strings.Contains(string(rec), "RESOURCE_NOT_FOUND") {
		t.Errorf("error record lacks the response body: %s", rec)
	}

	// a rerun only asks for what failed
	before := len(api.requests())
	_, err = g.Run(ctx, strings.NewReader("1\n2\n3\n4\n"), &bytes.Buffer{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(api.requests())-before, 1)
}

// TestNameSearchWithSQLiteCache resolves names concurrently and shares one
// sqlite database between two reports.
func TestNameSearchWithSQLiteCache(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	api, url := newServer(t)
	db, err := cache.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), nil)
	testutil.AssertNoError(t, err)
	defer db.Close()

	client := newClient(t, url, nil)
	input := "Jane Doe\tJane\tDoe\tIT\nJohn Roe\tJohn\tRoe\tArts\nAnn Poe\tAnn\tPoe\tEnergy\n"
	run := func(name string) string {
		s := &talent.NameSearch{API: client, Store: cache.Namespace(db, name), Concurrency: 3, Logger: nopLogger()}
		var out bytes.Buffer
		n, err := s.Run(ctx, strings.NewReader(input), &out)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, n, 3)
		return out.String()
	}

	run("engineers")
	testutil.AssertEqual(t, len(api.requests()), 3)
	run("engineers")
	testutil.AssertEqual(t, len(api.requests()), 3)
	run("artists")
	testutil.AssertEqual(t, len(api.requests()), 6)
}
