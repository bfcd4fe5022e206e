package audit

import (
	"context"
	"time"
)

// Storage persists session events and audit entries.
// Implementations must be safe for concurrent use, and appends must be safe
// to interleave with PurgeOlderThan for the same tenant.
type Storage interface {
	// AppendEvents stores events. SQL backends write the batch atomically;
	// MongoStorage may keep a stored prefix when a later document fails.
	AppendEvents(ctx context.Context, events ...SessionEvent) error

	// AppendEntries stores entries with the same guarantees as AppendEvents.
	AppendEntries(ctx context.Context, entries ...Entry) error

	// QueryEvents returns events matching the criteria, oldest first.
	QueryEvents(ctx context.Context, c Criteria) ([]SessionEvent, error)

	// QueryEntries returns entries matching the criteria, oldest first.
	QueryEntries(ctx context.Context, c Criteria) ([]Entry, error)

	// PurgeOlderThan deletes the tenant's events and entries with a timestamp
	// strictly before cutoff and returns the number of deleted records.
	PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)

	// Tenants lists the tenants that currently own at least one record.
	Tenants(ctx context.Context) ([]string, error)
}
