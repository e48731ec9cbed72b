package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates recording through a private registry.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	registry.StreamElement("author")
	registry.StreamElement("author")
	registry.CacheLookup("file", true)
	registry.APIRequest("author_retrieval", "200", 150*time.Millisecond)

	fmt.Println(testutil.ToFloat64(registry.StreamElements.WithLabelValues("author")))
	fmt.Println(testutil.ToFloat64(registry.CacheLookups.WithLabelValues("file", "hit")))

	// Output:
	// 2
	// 1
}

// Example_disabled shows that a disabled config records nothing.
func Example_disabled() {
	registry := New(Config{Enabled: false})

	registry.StreamError("search", "subsequence")
	registry.JobRun("nightly", nil, time.Second)

	fmt.Println(registry == nil)

	// Output:
	// true
}
