package talent

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

// Field is one named CSV cell.
type Field struct {
	Name  string
	Value string
}

// Row is one report line. Field order defines column order.
type Row []Field

// Get returns the value of the named field.
func (r Row) Get(name string) string {
	for _, f := range r {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

var bom = []byte{0xef, 0xbb, 0xbf}

// WriteCSV writes a UTF-8 byte order mark, a header taken from the field
// names of the first row, and one record per row with values placed under
// the matching header. It returns the number of rows written.
func WriteCSV(ctx context.Context, rows stream.Source[Row], w io.Writer, report string, reg *metrics.Registry) (int, error) {
	if _, err := w.Write(bom); err != nil {
		_ = rows.Close()
		return 0, err
	}

	cw := csv.NewWriter(w)
	var (
		header []string
		column map[string]int
		n      int
	)
	err := stream.ForEach(ctx, rows, func(_ context.Context, row Row) error {
		if header == nil {
			column = make(map[string]int, len(row))
			for i, f := range row {
				header = append(header, f.Name)
				column[f.Name] = i
			}
			if err := cw.Write(header); err != nil {
				return err
			}
		}

		record := make([]string, len(header))
		for _, f := range row {
			if i, ok := column[f.Name]; ok {
				record[i] = f.Value
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
		n++
		reg.ReportRow(report)
		return nil
	})
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	return n, err
}
