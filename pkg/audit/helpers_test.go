package audit_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/sessionkit/pkg/audit"
)

// MockStorage implements Storage for testing
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) AppendEvents(ctx context.Context, events ...audit.SessionEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockStorage) AppendEntries(ctx context.Context, entries ...audit.Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockStorage) QueryEvents(ctx context.Context, c audit.Criteria) ([]audit.SessionEvent, error) {
	args := m.Called(ctx, c)
	events, _ := args.Get(0).([]audit.SessionEvent)
	return events, args.Error(1)
}

func (m *MockStorage) QueryEntries(ctx context.Context, c audit.Criteria) ([]audit.Entry, error) {
	args := m.Called(ctx, c)
	entries, _ := args.Get(0).([]audit.Entry)
	return entries, args.Error(1)
}

func (m *MockStorage) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) Tenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	tenants, _ := args.Get(0).([]string)
	return tenants, args.Error(1)
}

func seedEvent(tenantID, sessionID string, typ audit.EventType, ts time.Time) audit.SessionEvent {
	e := audit.SessionEvent{
		ID:        sessionID + "-" + string(typ) + "-" + ts.Format("150405.000"),
		SessionID: sessionID,
		UserID:    "user-1",
		TenantID:  tenantID,
		Type:      typ,
		Timestamp: ts,
	}
	e.Hash = audit.HashEvent(e)
	return e
}
