// Package scheduler runs in-process periodic tasks such as the audit purge.
//
// A Scheduler checks its tasks on a fixed interval and starts every task whose
// next run is due. A task never overlaps with itself: if a run is still in
// progress when the task becomes due again, that tick is skipped. Each run gets
// its own context, derived from the one passed to Start and optionally bounded
// by a per-task timeout.
//
//	s := scheduler.New(scheduler.WithLogger(log))
//	err := s.AddTask("audit-purge", scheduler.DailyAt(3, 0), purger.Run,
//		scheduler.WithTaskTimeout(30*time.Minute))
//	go s.Start(ctx) // returns after ctx is cancelled and running tasks finish
//
// RunNow runs a registered task once on demand, with the same timeout and
// overlap rules, which suits one-shot maintenance commands.
//
// Schedules are evaluated in UTC unless WithLocation says otherwise.
package scheduler
