package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/national-talent-atm/data-retrieval/internal/testutil"
)

func TestZipTruncatesToShortest(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	b := track(Of(10, 20, 30, 40, 50))
	got, err := ToSlice(ctx, Zip(Of(1, 2, 3), Source[int](b)))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(got), 3)
	for i, row := range got {
		testutil.AssertSliceEqual(t, row, []int{i + 1, (i + 1) * 10})
	}
	testutil.AssertEqual(t, b.closed.Load(), true)
}

func TestZipReadErrorFailsOutput(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("metrics request failed")
	a := track(counter())
	src := Zip(Source[int](a), then(boom, 5))

	row, ok, err := src.Next(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertSliceEqual(t, row, []int{1, 5})

	_, ok, err = src.Next(ctx)
	testutil.AssertErrorIs(t, err, boom)
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, a.closed.Load(), true)

	_, _, err = src.Next(ctx)
	testutil.AssertErrorIs(t, err, boom)
}

func TestZipReadsConcurrently(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	// neither input can yield until both are being read
	b := newBarrier(2)
	input := func(v string) Source[string] {
		first := true
		return FromFunc(func(ctx context.Context) (string, bool, error) {
			if !first {
				return "", false, nil
			}
			first = false
			if err := b.wait(ctx); err != nil {
				return "", false, err
			}
			return v, true, nil
		}, nil)
	}

	got, err := ToSlice(ctx, Zip(input("author"), input("metrics")))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertSliceEqual(t, got[0], []string{"author", "metrics"})
}

func TestZip3(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got, err := ToSlice(ctx, Zip3(Of(1, 2), Of("a", "b", "c"), Of(true, false)))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []Tuple3[int, string, bool]{
		{V1: 1, V2: "a", V3: true},
		{V1: 2, V2: "b", V3: false},
	})
}

func TestZip2(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got, err := ToSlice(ctx, Zip2(Of("57194"), Of(12.5)))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []Tuple2[string, float64]{{V1: "57194", V2: 12.5}})
}

func TestZipNoInputs(t *testing.T) {
	n, err := Count(context.Background(), Zip[int]())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, int64(0))
}

func TestZipInterruptedRoundStaysAligned(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := Zip(Of(1, 2, 3), slow(50*time.Millisecond, 10, 20, 30))

	short, cancelShort := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelShort()
	_, _, err := src.Next(short)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)

	got, err := ToSlice(ctx, src)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 3)
	for i, row := range got {
		testutil.AssertSliceEqual(t, row, []int{i + 1, (i + 1) * 10})
	}
}

func TestZip2NilInterfaceElements(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("not found")
	got, err := ToSlice(ctx, Zip2(Of[error](nil, boom), Of(1, 2)))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 2)
	testutil.AssertEqual(t, got[0].V1, nil)
	testutil.AssertEqual(t, got[0].V2, 1)
	testutil.AssertErrorIs(t, got[1].V1, boom)
	testutil.AssertEqual(t, got[1].V2, 2)
}
