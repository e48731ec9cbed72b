// Package metrics provides Prometheus instrumentation for data-retrieval
// components.
//
// Components accept a *Registry and call its recording methods; a nil
// registry disables collection without any branching at the call site:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	src := stream.MergeMap(ids, fetch, stream.WithMetrics(reg), stream.WithName("search"))
//
// Expose the default registry over HTTP with promhttp:
//
//	http.Handle("/metrics", promhttp.Handler())
package metrics
