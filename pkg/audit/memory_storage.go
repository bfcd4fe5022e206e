package audit

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStorage implements Storage in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	events  []SessionEvent
	entries []Entry
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// AppendEvents stores copies of the events.
func (m *MemoryStorage) AppendEvents(ctx context.Context, events ...SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range events {
		e.Metadata = maps.Clone(e.Metadata)
		m.events = append(m.events, e)
	}
	return nil
}

// AppendEntries stores copies of the entries.
func (m *MemoryStorage) AppendEntries(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		e.Details = maps.Clone(e.Details)
		m.entries = append(m.entries, e)
	}
	return nil
}

// QueryEvents returns matching events, oldest first.
func (m *MemoryStorage) QueryEvents(ctx context.Context, c Criteria) ([]SessionEvent, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var out []SessionEvent
	for _, e := range m.events {
		if c.matches(e.TenantID, e.SessionID, e.UserID, e.Type, e.Timestamp) {
			e.Metadata = maps.Clone(e.Metadata)
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b SessionEvent) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	return limit(out, c.Limit), nil
}

// QueryEntries returns matching entries, oldest first.
func (m *MemoryStorage) QueryEntries(ctx context.Context, c Criteria) ([]Entry, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var out []Entry
	for _, e := range m.entries {
		if c.matches(e.TenantID, e.SessionID, e.UserID, e.Type, e.Timestamp) {
			e.Details = maps.Clone(e.Details)
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Entry) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	return limit(out, c.Limit), nil
}

// PurgeOlderThan deletes the tenant's records older than cutoff.
func (m *MemoryStorage) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.events) + len(m.entries)
	m.events = slices.DeleteFunc(m.events, func(e SessionEvent) bool {
		return e.TenantID == tenantID && e.Timestamp.Before(cutoff)
	})
	m.entries = slices.DeleteFunc(m.entries, func(e Entry) bool {
		return e.TenantID == tenantID && e.Timestamp.Before(cutoff)
	})
	return int64(before - len(m.events) - len(m.entries)), nil
}

// Tenants lists tenants with at least one record, sorted.
func (m *MemoryStorage) Tenants(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range m.events {
		seen[e.TenantID] = struct{}{}
	}
	for _, e := range m.entries {
		seen[e.TenantID] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
