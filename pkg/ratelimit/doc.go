/*
Package ratelimit groups the limiters that pace calls to the Elsevier APIs
and bound the work in flight.

  - bucket: in-process token bucket; with a burst of 1 it paces requests
    at a fixed interval
  - distributed: token bucket kept in Redis, shared by every process using
    the same key, falling back to a local bucket when Redis is down
  - concurrency: FIFO counting semaphore bounding concurrent operations

Request paths only need Waiter, so the client can be handed either an
in-process or a shared limiter:

	pacer, _ := bucket.NewPacer(100*time.Millisecond, "scopus", nil)
	var w ratelimit.Waiter = pacer
	if err := w.Wait(ctx); err != nil {
		return err
	}
*/
package ratelimit
