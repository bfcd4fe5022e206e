package scheduler

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a scheduler
type Option func(*Scheduler)

// WithCheckInterval sets how often the scheduler looks for due tasks.
// Defaults to 30 seconds.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger for the scheduler
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocation sets the time zone schedules are evaluated in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// TaskOption is a functional option for configuring a scheduled task
type TaskOption func(*task)

// WithTaskTimeout bounds each run of the task.
func WithTaskTimeout(d time.Duration) TaskOption {
	return func(t *task) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithRunOnStart runs the task once as soon as the scheduler starts instead
// of waiting for its first scheduled time.
func WithRunOnStart() TaskOption {
	return func(t *task) {
		t.runOnStart = true
	}
}
