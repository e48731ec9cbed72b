// Package distributed provides a token bucket shared between processes
// through Redis.
//
// Several retrieval runs that use the same API keys must together stay
// under the provider's request quota. Giving every run a Limiter with the
// same Key makes them draw from one bucket; the booking happens in a Lua
// script so it is atomic across processes.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	lim, err := distributed.NewLimiter(ctx, distributed.Config{
//		Redis:           rdb,
//		Key:             "scopus",
//		Rate:            10,
//		Burst:           1,
//		FallbackToLocal: true,
//	})
//	if err != nil {
//		return err
//	}
//	defer lim.Close()
//
//	if err := lim.Wait(ctx); err != nil {
//		return err
//	}
//
// With FallbackToLocal set, a Redis outage does not stop the caller:
// decisions are served by a local bucket.Limiter with the same rate and
// burst, and each such decision is counted in the fallback metric.
package distributed
