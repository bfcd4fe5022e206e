package audit

import "time"

// Option configures Logger behavior during initialization
type Option func(*Logger)

// WithTimeout bounds every storage call made by the logger.
func WithTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithHistoryLimit caps the number of events returned by History.
func WithHistoryLimit(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.historyLimit = n
		}
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}
