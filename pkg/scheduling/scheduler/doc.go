// Package scheduler runs retrieval jobs periodically on cron specs.
//
//	s := scheduler.New(scheduler.Config{Timeout: 6 * time.Hour})
//	err := s.Schedule("talent", "0 0 2 * * *", scheduler.JobFunc(func(ctx context.Context) error {
//		return generator.Run(ctx, input)
//	}))
//	if err != nil {
//		return err
//	}
//	return s.Run(ctx)
//
// A job is skipped while its previous run is still going unless
// Config.AllowOverlap is set, and a panicking job is recovered and logged.
// Each run carries a logger with job and run_id fields, retrievable with
// zerolog.Ctx.
package scheduler
