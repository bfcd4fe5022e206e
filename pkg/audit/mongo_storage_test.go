package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestMongoFilter(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	tests := []struct {
		name string
		c    Criteria
		want bson.M
	}{
		{
			name: "tenant only",
			c:    Criteria{TenantID: "t1"},
			want: bson.M{"tenant_id": "t1"},
		},
		{
			name: "session and user",
			c:    Criteria{TenantID: "t1", SessionID: "s1", UserID: "u1"},
			want: bson.M{"tenant_id": "t1", "session_id": "s1", "user_id": "u1"},
		},
		{
			name: "types",
			c:    Criteria{TenantID: "t1", Types: []EventType{EventCreated, EventExpired}},
			want: bson.M{"tenant_id": "t1", "event_type": bson.M{"$in": []EventType{EventCreated, EventExpired}}},
		},
		{
			name: "time range",
			c:    Criteria{TenantID: "t1", Since: since, Until: until},
			want: bson.M{"tenant_id": "t1", "timestamp": bson.M{"$gte": since, "$lt": until}},
		},
		{
			name: "since only",
			c:    Criteria{TenantID: "t1", Since: since},
			want: bson.M{"tenant_id": "t1", "timestamp": bson.M{"$gte": since}},
		},
		{
			name: "limit is not a filter",
			c:    Criteria{TenantID: "t1", Limit: 5},
			want: bson.M{"tenant_id": "t1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, mongoFilter(tt.c))
		})
	}
}

func TestNewMongoStorage(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewMongoStorage(nil) })

	// the driver connects lazily; no server is needed to build collections
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	db := client.Database("audit_test")

	s := NewMongoStorage(db)
	assert.Equal(t, defaultEventsCollection, s.events.Name())
	assert.Equal(t, defaultEntriesCollection, s.entries.Name())

	s = NewMongoStorage(db, WithMongoCollections("ev", ""))
	assert.Equal(t, "ev", s.events.Name())
	assert.Equal(t, defaultEntriesCollection, s.entries.Name())
}

func TestMongoStorage_RequiresTenant(t *testing.T) {
	t.Parallel()

	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	s := NewMongoStorage(client.Database("audit_test"))
	ctx := context.Background()

	_, err = s.QueryEvents(ctx, Criteria{})
	assert.ErrorIs(t, err, ErrTenantRequired)
	_, err = s.QueryEntries(ctx, Criteria{})
	assert.ErrorIs(t, err, ErrTenantRequired)
	_, err = s.PurgeOlderThan(ctx, "", time.Now())
	assert.ErrorIs(t, err, ErrTenantRequired)
}
