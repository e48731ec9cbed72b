// Package benchmark measures the stream operators and the queue behind
// them on report-shaped workloads.
package benchmark

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(57000000000 + i)
	}
	return out
}

func sizeLabel(size int) string {
	return "n=" + strconv.Itoa(size)
}

func BenchmarkLinesFilterMap(b *testing.B) {
	for _, size := range []int{100, 10000} {
		input := strings.Join(ids(size), "\n\n")
		b.Run(sizeLabel(size), func(b *testing.B) {
			b.ReportAllocs()
			ctx := context.Background()
			for range b.N {
				lines := stream.Lines(strings.NewReader(input))
				nonBlank := stream.Filter(lines, func(_ context.Context, s string) (bool, error) { return s != "", nil })
				parsed := stream.Map(nonBlank, func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) })
				if _, err := stream.Count(ctx, parsed); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkTeeZip3 is the shape of the talent generator: fan out to three
// branches and join them back per entry.
func BenchmarkTeeZip3(b *testing.B) {
	for _, hwm := range []int{0, 1, 16} {
		data := ids(1000)
		b.Run("hwm="+strconv.Itoa(hwm), func(b *testing.B) {
			b.ReportAllocs()
			ctx := context.Background()
			for range b.N {
				br := stream.MultiTee(stream.FromSlice(data), 3, stream.WithHighWaterMark(hwm))
				id := func(_ context.Context, s string) (string, error) { return s, nil }
				joined := stream.Zip3(stream.Map(br[0], id), stream.Map(br[1], id), stream.Map(br[2], id))
				n, err := stream.Count(ctx, joined)
				if err != nil || n != int64(len(data)) {
					b.Fatalf("count %d, err %v", n, err)
				}
			}
		})
	}
}

func BenchmarkMergeMap(b *testing.B) {
	for _, c := range []int{1, 4, 16} {
		data := ids(1000)
		b.Run("concurrency="+strconv.Itoa(c), func(b *testing.B) {
			b.ReportAllocs()
			ctx := context.Background()
			for range b.N {
				merged := stream.MergeMap(stream.FromSlice(data), func(_ context.Context, s string) (stream.Source[string], error) {
					return stream.Of(s, s), nil
				}, stream.WithConcurrency(c))
				if _, err := stream.Count(ctx, merged); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSwitchMap(b *testing.B) {
	data := ids(1000)
	b.ReportAllocs()
	ctx := context.Background()
	for range b.N {
		switched := stream.SwitchMap(stream.FromSlice(data), func(_ context.Context, s string) (stream.Source[string], error) {
			return stream.Of(s), nil
		})
		if _, err := stream.Count(ctx, switched); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuffer(b *testing.B) {
	for _, hwm := range []int{1, 64} {
		data := ids(10000)
		b.Run("hwm="+strconv.Itoa(hwm), func(b *testing.B) {
			b.ReportAllocs()
			ctx := context.Background()
			for range b.N {
				if _, err := stream.Count(ctx, stream.Buffer(stream.FromSlice(data), hwm)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
