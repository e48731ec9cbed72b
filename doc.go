/*
Package retrieval fetches author data from the Elsevier Scopus and SciVal
APIs and turns it into the talent database reports.

Streaming (pkg/streaming):
  - stream: pull-based sequences with backpressure; filter, map,
    flatMap, mergeMap, switchMap, tee and zip operators
  - channel: the bounded queue behind every goroutine-driven stage
  - writer: asynchronous buffered writing of report files

Rate Limiting (pkg/ratelimit):
  - bucket: token bucket and the fixed-interval API pacer
  - concurrency: permits bounding mergeMap fan-out
  - distributed: a Redis token bucket shared by several processes

Scheduling (pkg/scheduling):
  - scheduler: cron reruns of a report

Application (internal, cmd/retrieve):
  - scopus: the API client with key rotation and retries
  - cache: file, Redis and SQLite response caches
  - talent: the talent, name search and lookup pipelines

Example usage:

	import (
		"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/bucket"
		"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
	)

	pacer, _ := bucket.NewPacer(100*time.Millisecond, "api", nil)
	fetched := stream.MergeMap(ids, func(_ context.Context, id string) (stream.Source[Body], error) {
		return stream.Lazy(func(ctx context.Context) (Body, error) {
			if err := pacer.Wait(ctx); err != nil {
				return Body{}, err
			}
			return fetch(ctx, id)
		}), nil
	}, stream.WithConcurrency(4))
*/
package retrieval
