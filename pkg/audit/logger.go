package audit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultTimeout      = 2 * time.Second
	defaultHistoryLimit = 100
)

// Logger is the best-effort write path for session events and audit entries.
// Every call is bounded by the configured timeout; when it elapses the write
// is abandoned and reported as ErrStorageTimeout. Logger never retries.
type Logger struct {
	storage      Storage
	timeout      time.Duration
	historyLimit int
	now          func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &Logger{
		storage:      storage,
		timeout:      defaultTimeout,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// RecordEvent stamps, hashes and stores a session event.
func (l *Logger) RecordEvent(ctx context.Context, event SessionEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	event.Timestamp = normalizeTime(event.Timestamp)

	if err := event.Validate(); err != nil {
		return err
	}
	event.Hash = HashEvent(event)

	return l.bounded(ctx, func(ctx context.Context) error {
		return l.storage.AppendEvents(ctx, event)
	})
}

// RecordAudit stamps, hashes and stores an audit entry.
func (l *Logger) RecordAudit(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Timestamp = normalizeTime(entry.Timestamp)

	if err := entry.Validate(); err != nil {
		return err
	}
	entry.Hash = HashEntry(entry)

	return l.bounded(ctx, func(ctx context.Context) error {
		return l.storage.AppendEntries(ctx, entry)
	})
}

// History returns the most recent events of a session recorded at or after
// since, oldest first, capped at the configured history limit.
func (l *Logger) History(ctx context.Context, tenantID, sessionID string, since time.Time) ([]SessionEvent, error) {
	var events []SessionEvent
	err := l.bounded(ctx, func(ctx context.Context) error {
		var err error
		events, err = l.storage.QueryEvents(ctx, Criteria{
			TenantID:  tenantID,
			SessionID: sessionID,
			Since:     since,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(events) > l.historyLimit {
		events = events[len(events)-l.historyLimit:]
	}
	return events, nil
}

// Events returns events matching the criteria.
func (l *Logger) Events(ctx context.Context, c Criteria) ([]SessionEvent, error) {
	return l.storage.QueryEvents(ctx, c)
}

// Entries returns audit entries matching the criteria.
func (l *Logger) Entries(ctx context.Context, c Criteria) ([]Entry, error) {
	return l.storage.QueryEntries(ctx, c)
}

// PurgeOlderThan deletes a tenant's records older than cutoff. It is meant for
// scheduled jobs and is not bounded by the write timeout.
func (l *Logger) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	return l.storage.PurgeOlderThan(ctx, tenantID, cutoff)
}

// bounded runs fn detached from the caller's cancellation but limited by the
// logger timeout. If the backend ignores its context, the result is dropped.
func (l *Logger) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrTenantRequired) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.Join(ErrStorageTimeout, err)
		}
		return errors.Join(ErrStorageNotAvailable, err)
	case <-ctx.Done():
		return errors.Join(ErrStorageTimeout, ctx.Err())
	}
}
