package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDB is the subset of *pgxpool.Pool used by PostgresStorage.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStorage implements Storage on PostgreSQL. The schema is provided by
// Migrations.
type PostgresStorage struct {
	db PostgresDB
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgresStorage creates a storage over an open pool.
func NewPostgresStorage(db PostgresDB) *PostgresStorage {
	if db == nil {
		panic("audit: postgres db cannot be nil")
	}
	return &PostgresStorage{db: db}
}

const (
	insertEventSQL = `INSERT INTO session_events
		(id, session_id, user_id, tenant_id, event_type, metadata, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertEntrySQL = `INSERT INTO session_audit_logs
		(id, session_id, user_id, tenant_id, event_type, ip_address, device_info, details, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectEventsSQL = `SELECT id, session_id, user_id, tenant_id, event_type, metadata, hash, created_at
		FROM session_events`

	selectEntriesSQL = `SELECT id, session_id, user_id, tenant_id, event_type, ip_address, device_info, details, hash, created_at
		FROM session_audit_logs`
)

// AppendEvents inserts the events in one batch; pgx runs a batch in an
// implicit transaction.
func (s *PostgresStorage) AppendEvents(ctx context.Context, events ...SessionEvent) error {
	if len(events) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for i := range events {
		e := &events[i]
		if err := e.Validate(); err != nil {
			return err
		}
		b.Queue(insertEventSQL, e.ID, e.SessionID, e.UserID, e.TenantID, string(e.Type), e.Metadata, e.Hash, e.Timestamp)
	}
	return s.sendBatch(ctx, b)
}

// AppendEntries inserts the entries in one batch.
func (s *PostgresStorage) AppendEntries(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for i := range entries {
		e := &entries[i]
		if err := e.Validate(); err != nil {
			return err
		}
		b.Queue(insertEntrySQL, e.ID, e.SessionID, e.UserID, e.TenantID, string(e.Type),
			e.IPAddress, e.DeviceInfo, e.Details, e.Hash, e.Timestamp)
	}
	return s.sendBatch(ctx, b)
}

func (s *PostgresStorage) sendBatch(ctx context.Context, b *pgx.Batch) error {
	br := s.db.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("audit: insert: %w", err)
		}
	}
	return br.Close()
}

// QueryEvents returns matching events, oldest first.
func (s *PostgresStorage) QueryEvents(ctx context.Context, c Criteria) ([]SessionEvent, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(c)
	rows, err := s.db.Query(ctx, selectEventsSQL+where, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionEvent, error) {
		var (
			e  SessionEvent
			et string
		)
		err := row.Scan(&e.ID, &e.SessionID, &e.UserID, &e.TenantID, &et, &e.Metadata, &e.Hash, &e.Timestamp)
		e.Type = EventType(et)
		e.Timestamp = e.Timestamp.UTC()
		return e, err
	})
}

// QueryEntries returns matching entries, oldest first.
func (s *PostgresStorage) QueryEntries(ctx context.Context, c Criteria) ([]Entry, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(c)
	rows, err := s.db.Query(ctx, selectEntriesSQL+where, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e  Entry
			et string
		)
		err := row.Scan(&e.ID, &e.SessionID, &e.UserID, &e.TenantID, &et,
			&e.IPAddress, &e.DeviceInfo, &e.Details, &e.Hash, &e.Timestamp)
		e.Type = EventType(et)
		e.Timestamp = e.Timestamp.UTC()
		return e, err
	})
}

// PurgeOlderThan deletes the tenant's records older than cutoff in one
// transaction. Concurrent inserts are unaffected: they carry current timestamps.
func (s *PostgresStorage) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (n int64, err error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: begin purge: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback(ctx))
		}
	}()

	for _, table := range []string{"session_audit_logs", "session_events"} {
		tag, execErr := tx.Exec(ctx,
			"DELETE FROM "+table+" WHERE tenant_id = $1 AND created_at < $2", tenantID, cutoff)
		if execErr != nil {
			return 0, fmt.Errorf("audit: purge %s: %w", table, execErr)
		}
		n += tag.RowsAffected()
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("audit: commit purge: %w", err)
	}
	return n, nil
}

// Tenants lists tenants owning at least one record.
func (s *PostgresStorage) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT tenant_id FROM session_events
		UNION SELECT tenant_id FROM session_audit_logs ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("audit: list tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func buildWhere(c Criteria) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{c.TenantID}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if c.SessionID != "" {
		add("session_id = $%d", c.SessionID)
	}
	if c.UserID != "" {
		add("user_id = $%d", c.UserID)
	}
	if len(c.Types) > 0 {
		types := make([]string, len(c.Types))
		for i, t := range c.Types {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", types)
	}
	if !c.Since.IsZero() {
		add("created_at >= $%d", c.Since)
	}
	if !c.Until.IsZero() {
		add("created_at < $%d", c.Until)
	}

	q := " WHERE " + strings.Join(conds, " AND ") + " ORDER BY created_at, id"
	if c.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", c.Limit)
	}
	return q, args
}
