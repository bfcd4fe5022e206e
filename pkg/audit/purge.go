package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Archiver receives a tenant's expired records before they are deleted.
type Archiver interface {
	Archive(ctx context.Context, tenantID string, cutoff time.Time, events []SessionEvent, entries []Entry) error
}

// Purger deletes records older than the retention window, tenant by tenant.
// Records with a timestamp older than now - retention are removed; newer ones
// are left untouched.
type Purger struct {
	storage   Storage
	archiver  Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// PurgerOption configures a Purger.
type PurgerOption func(*Purger)

// WithArchiver archives expired records before deletion. A tenant whose
// archive fails is skipped so nothing is deleted unarchived.
func WithArchiver(a Archiver) PurgerOption {
	return func(p *Purger) {
		p.archiver = a
	}
}

// WithPurgerClock overrides the time source used to compute the cutoff.
func WithPurgerClock(now func() time.Time) PurgerOption {
	return func(p *Purger) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPurgerLogger sets the logger for purge runs.
func WithPurgerLogger(l *slog.Logger) PurgerOption {
	return func(p *Purger) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPurger creates a purger keeping retentionDays days of records.
func NewPurger(storage Storage, retentionDays int, opts ...PurgerOption) *Purger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	if retentionDays <= 0 {
		panic("audit: retention must be at least one day")
	}

	p := &Purger{
		storage:   storage,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cutoff returns the instant before which records are expired.
func (p *Purger) Cutoff() time.Time {
	return p.now().Add(-p.retention)
}

// Run purges every tenant known to the storage. Failures for one tenant do not
// stop the others; all of them are returned joined.
func (p *Purger) Run(ctx context.Context) error {
	tenants, err := p.storage.Tenants(ctx)
	if err != nil {
		return errors.Join(ErrStorageNotAvailable, err)
	}

	cutoff := p.Cutoff()

	var (
		errs  []error
		total int64
	)
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		n, err := p.purgeTenant(ctx, tenantID, cutoff)
		if err != nil {
			p.logger.ErrorContext(ctx, "audit purge failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		total += n
	}

	p.logger.InfoContext(ctx, "audit purge finished",
		slog.Time("cutoff", cutoff),
		slog.Int("tenants", len(tenants)),
		slog.Int64("deleted", total))

	return errors.Join(errs...)
}

// PurgeTenant purges a single tenant and returns the number of deleted records.
func (p *Purger) PurgeTenant(ctx context.Context, tenantID string) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	return p.purgeTenant(ctx, tenantID, p.Cutoff())
}

func (p *Purger) purgeTenant(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	if p.archiver != nil {
		c := Criteria{TenantID: tenantID, Until: cutoff}

		events, err := p.storage.QueryEvents(ctx, c)
		if err != nil {
			return 0, errors.Join(ErrStorageNotAvailable, err)
		}
		entries, err := p.storage.QueryEntries(ctx, c)
		if err != nil {
			return 0, errors.Join(ErrStorageNotAvailable, err)
		}

		if len(events)+len(entries) > 0 {
			if err := p.archiver.Archive(ctx, tenantID, cutoff, events, entries); err != nil {
				return 0, errors.Join(ErrArchiveFailed, err)
			}
		}
	}

	n, err := p.storage.PurgeOlderThan(ctx, tenantID, cutoff)
	if err != nil {
		return 0, errors.Join(ErrStorageNotAvailable, err)
	}
	return n, nil
}
