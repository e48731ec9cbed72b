package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances. A nil *Registry is valid and records nothing.
type Registry struct {
	// Streaming
	StreamElements      *prometheus.CounterVec
	StreamErrors        *prometheus.CounterVec
	SubsequencesActive  *prometheus.GaugeVec
	SubsequenceSwitches *prometheus.CounterVec
	BackpressureEvents  *prometheus.CounterVec

	// Rate limiting
	RateLimitWaitTime  *prometheus.HistogramVec
	RateLimitFallbacks *prometheus.CounterVec
	ConcurrencyActive  *prometheus.GaugeVec

	// Remote API
	APIRequests           *prometheus.CounterVec
	APIRequestDuration    *prometheus.HistogramVec
	APIRateLimitRemaining *prometheus.GaugeVec

	// Cache and reports
	CacheLookups       *prometheus.CounterVec
	CacheWrites        *prometheus.CounterVec
	ReportRows         *prometheus.CounterVec
	WriterFlushes      *prometheus.CounterVec
	WriterBytesWritten *prometheus.CounterVec

	// Scheduled jobs
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// DefaultRegistry is registered against prometheus.DefaultRegisterer and
// used by the command line binary.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a registry under DefaultNamespace.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace)
}

func newRegistry(reg prometheus.Registerer, ns string) *Registry {
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &Registry{
		StreamElements: counter("stream", "elements_total",
			"Elements emitted by a stage", "stage"),
		StreamErrors: counter("stream", "errors_total",
			"Errors observed by a stage, by kind (fatal, subsequence, expand)", "stage", "kind"),
		SubsequencesActive: gauge("stream", "subsequences_active",
			"Sub-sequences currently being drained", "stage"),
		SubsequenceSwitches: counter("stream", "subsequence_switches_total",
			"Sub-sequences cancelled because a newer one superseded them", "stage"),
		BackpressureEvents: counter("stream", "backpressure_events_total",
			"Queue events by type (blocked, dropped)", "queue", "event"),

		RateLimitWaitTime: histogram("ratelimit", "wait_duration_seconds",
			"Time spent waiting for rate limit approval", prometheus.DefBuckets, "limiter"),
		RateLimitFallbacks: counter("ratelimit", "fallbacks_total",
			"Distributed limiter decisions served by the local fallback", "limiter"),
		ConcurrencyActive: gauge("concurrency", "active",
			"Number of active concurrent operations", "limiter"),

		APIRequests: counter("api", "requests_total",
			"Remote API requests by endpoint and HTTP status", "endpoint", "status"),
		APIRequestDuration: histogram("api", "request_duration_seconds",
			"Remote API request latency", prometheus.DefBuckets, "endpoint"),
		APIRateLimitRemaining: gauge("api", "ratelimit_remaining",
			"Last X-RateLimit-Remaining value reported by the API", "endpoint"),

		CacheLookups: counter("cache", "lookups_total",
			"Cache lookups by store and result (hit, miss)", "store", "result"),
		CacheWrites: counter("cache", "writes_total",
			"Cache writes by store and kind (body, error)", "store", "kind"),
		ReportRows: counter("report", "rows_total",
			"Rows written to a report", "report"),
		WriterFlushes: counter("writer", "flushes_total",
			"Async writer flushes", "writer"),
		WriterBytesWritten: counter("writer", "bytes_written_total",
			"Bytes written through the async writer", "writer"),

		JobRuns: counter("scheduler", "job_runs_total",
			"Scheduled job runs by result (success, failure)", "job", "result"),
		JobDuration: histogram("scheduler", "job_duration_seconds",
			"Scheduled job run time", []float64{1, 5, 30, 60, 300, 900, 3600}, "job"),
	}
}

// StreamElement counts one element emitted by stage.
func (r *Registry) StreamElement(stage string) {
	if r == nil {
		return
	}
	r.StreamElements.WithLabelValues(stage).Inc()
}

// StreamError counts an error of the given kind in stage.
func (r *Registry) StreamError(stage, kind string) {
	if r == nil {
		return
	}
	r.StreamErrors.WithLabelValues(stage, kind).Inc()
}

// SubsequenceStarted increments the active sub-sequence gauge.
func (r *Registry) SubsequenceStarted(stage string) {
	if r == nil {
		return
	}
	r.SubsequencesActive.WithLabelValues(stage).Inc()
}

// SubsequenceFinished decrements the active sub-sequence gauge.
func (r *Registry) SubsequenceFinished(stage string) {
	if r == nil {
		return
	}
	r.SubsequencesActive.WithLabelValues(stage).Dec()
}

// SubsequenceSwitched counts a superseded sub-sequence.
func (r *Registry) SubsequenceSwitched(stage string) {
	if r == nil {
		return
	}
	r.SubsequenceSwitches.WithLabelValues(stage).Inc()
}

// Backpressure counts a queue event such as "blocked" or "dropped".
func (r *Registry) Backpressure(queue, event string) {
	if r == nil {
		return
	}
	r.BackpressureEvents.WithLabelValues(queue, event).Inc()
}

// RateLimitWaited observes the time a caller spent waiting on limiter.
func (r *Registry) RateLimitWaited(limiter string, d time.Duration) {
	if r == nil {
		return
	}
	r.RateLimitWaitTime.WithLabelValues(limiter).Observe(d.Seconds())
}

// RateLimitFallback counts a decision served locally.
func (r *Registry) RateLimitFallback(limiter string) {
	if r == nil {
		return
	}
	r.RateLimitFallbacks.WithLabelValues(limiter).Inc()
}

// ConcurrencyInUse sets the active slot gauge of limiter.
func (r *Registry) ConcurrencyInUse(limiter string, n int) {
	if r == nil {
		return
	}
	r.ConcurrencyActive.WithLabelValues(limiter).Set(float64(n))
}

// APIRequest records one remote call.
func (r *Registry) APIRequest(endpoint, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.APIRequests.WithLabelValues(endpoint, status).Inc()
	r.APIRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// APIRemaining records the remaining quota reported by the API.
func (r *Registry) APIRemaining(endpoint string, remaining float64) {
	if r == nil {
		return
	}
	r.APIRateLimitRemaining.WithLabelValues(endpoint).Set(remaining)
}

// CacheLookup counts a cache hit or miss.
func (r *Registry) CacheLookup(store string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(store, result).Inc()
}

// CacheWrite counts a persisted body or error record.
func (r *Registry) CacheWrite(store, kind string) {
	if r == nil {
		return
	}
	r.CacheWrites.WithLabelValues(store, kind).Inc()
}

// ReportRow counts one row written to report.
func (r *Registry) ReportRow(report string) {
	if r == nil {
		return
	}
	r.ReportRows.WithLabelValues(report).Inc()
}

// WriterFlush records a flush of n bytes.
func (r *Registry) WriterFlush(writer string, n int) {
	if r == nil {
		return
	}
	r.WriterFlushes.WithLabelValues(writer).Inc()
	r.WriterBytesWritten.WithLabelValues(writer).Add(float64(n))
}

// JobRun records a finished scheduled run.
func (r *Registry) JobRun(job string, err error, d time.Duration) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
	r.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
