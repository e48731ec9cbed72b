// Package talent builds the talent database reports: it reads a list of
// Scopus author ids or names, fetches every resource a report needs
// through the cache, joins them per author and writes CSV rows.
package talent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// Entry is one non-blank input line.
type Entry struct {
	// Index is 1-based over non-blank lines.
	Index int
	// ID is the first TAB separated column.
	ID string
	// IndexText is Index right-aligned for log output.
	IndexText string
	// Rest holds the remaining columns, trimmed.
	Rest []string
}

// Fetched is the result of fetching one resource for an Entry. A failed
// fetch is carried as a value in Err so that it reaches the cache sink and
// the join instead of terminating the pipeline.
type Fetched[B any] struct {
	Entry
	Cached bool
	Body   B
	Raw    []byte
	Err    error
}

// OK reports whether the fetch succeeded.
func (f Fetched[B]) OK() bool { return f.Err == nil }

// IndexText formats index right-aligned in six columns.
func IndexText(index int) string {
	return fmt.Sprintf("%6d", index)
}

// NonBlank trims every line and drops the empty ones, including a leading
// byte order mark.
func NonBlank(lines stream.Source[string]) stream.Source[string] {
	trimmed := stream.Map(lines, func(_ context.Context, line string) (string, error) {
		return strings.TrimSpace(strings.TrimPrefix(line, "\ufeff")), nil
	}, stream.WithName("trim"))
	return stream.Filter(trimmed, func(_ context.Context, line string) (bool, error) {
		return line != "", nil
	}, stream.WithName("non-blank"))
}

// ParseEntries turns input lines into Entries.
func ParseEntries(lines stream.Source[string]) stream.Source[Entry] {
	index := 0
	return stream.Map(NonBlank(lines), func(_ context.Context, line string) (Entry, error) {
		index++
		cols := splitColumns(line)
		return Entry{Index: index, ID: cols[0], IndexText: IndexText(index), Rest: cols[1:]}, nil
	}, stream.WithName("parse"))
}

func splitColumns(line string) []string {
	cols := strings.Split(line, "\t")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

// Paths locates the files of one named report configuration.
type Paths struct {
	Input     string
	OutputDir string
	CacheDir  string
	Result    string
}

// TalentPaths lays out the talent generator files under target.
func TalentPaths(target, name string) Paths {
	out := filepath.Join(target, "output", name)
	return Paths{
		Input:     filepath.Join(target, name+".txt"),
		OutputDir: out,
		CacheDir:  filepath.Join(out, "cache"),
		Result:    filepath.Join(out, name+"-talent-full-result.csv"),
	}
}

// NamesPaths lays out the name search files under target. The cache is
// kept next to the result.
func NamesPaths(target, name string) Paths {
	out := filepath.Join(target, "output", name)
	return Paths{
		Input:     filepath.Join(target, name+".txt"),
		OutputDir: out,
		CacheDir:  out,
		Result:    filepath.Join(out, name+"-result.csv"),
	}
}
