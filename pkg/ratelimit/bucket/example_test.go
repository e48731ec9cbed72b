package bucket_test

import (
	"context"
	"fmt"
	"time"

	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/bucket"
)

func Example() {
	limiter, err := bucket.NewSafe(10, 5)
	if err != nil {
		panic(err)
	}

	allowed := 0
	for i := 0; i < 8; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	fmt.Println("allowed:", allowed)
	// Output: allowed: 5
}

// A pacer spaces requests evenly, as the Scopus client does with its
// per-second request budget.
func ExampleNewPacer() {
	pacer, err := bucket.NewPacer(10*time.Millisecond, "scopus", nil)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := pacer.Wait(ctx); err != nil {
			panic(err)
		}
	}
	fmt.Println(time.Since(start) >= 20*time.Millisecond)
	// Output: true
}
