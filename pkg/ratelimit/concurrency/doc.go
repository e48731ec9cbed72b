// Package concurrency provides a FIFO counting semaphore with context-aware
// waiting. Stream merge stages use it to bound how many sub-sequences are
// drained at once, and several stages can share one Limiter to share one
// budget.
//
//	lim, _ := concurrency.NewSafe(4)
//	if err := lim.Wait(ctx); err != nil {
//		return err
//	}
//	defer lim.Release()
package concurrency
