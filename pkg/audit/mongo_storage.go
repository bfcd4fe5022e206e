package audit

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultEventsCollection  = "session_events"
	defaultEntriesCollection = "session_audit_logs"
)

// MongoStorage implements Storage on MongoDB collections.
type MongoStorage struct {
	events  *mongo.Collection
	entries *mongo.Collection
}

var _ Storage = (*MongoStorage)(nil)

// MongoOption configures MongoStorage collection names.
type MongoOption func(*mongoOptions)

type mongoOptions struct {
	events  string
	entries string
}

// WithMongoCollections overrides the default collection names.
func WithMongoCollections(events, entries string) MongoOption {
	return func(o *mongoOptions) {
		if events != "" {
			o.events = events
		}
		if entries != "" {
			o.entries = entries
		}
	}
}

// NewMongoStorage creates a storage in db.
func NewMongoStorage(db *mongo.Database, opts ...MongoOption) *MongoStorage {
	if db == nil {
		panic("audit: mongo database cannot be nil")
	}

	o := &mongoOptions{events: defaultEventsCollection, entries: defaultEntriesCollection}
	for _, opt := range opts {
		opt(o)
	}

	return &MongoStorage{
		events:  db.Collection(o.events),
		entries: db.Collection(o.entries),
	}
}

// EnsureIndexes creates the tenant/time and tenant/session indexes.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	}
	for _, coll := range []*mongo.Collection{s.events, s.entries} {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("audit: create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// AppendEvents inserts the events with an ordered InsertMany.
func (s *MongoStorage) AppendEvents(ctx context.Context, events ...SessionEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, len(events))
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
		docs[i] = events[i]
	}
	if _, err := s.events.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("audit: insert events: %w", err)
	}
	return nil
}

// AppendEntries inserts the entries with an ordered InsertMany.
func (s *MongoStorage) AppendEntries(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, len(entries))
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return err
		}
		docs[i] = entries[i]
	}
	if _, err := s.entries.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("audit: insert entries: %w", err)
	}
	return nil
}

// QueryEvents returns matching events, oldest first.
func (s *MongoStorage) QueryEvents(ctx context.Context, c Criteria) ([]SessionEvent, error) {
	var out []SessionEvent
	if err := s.find(ctx, s.events, c, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Timestamp = out[i].Timestamp.UTC()
	}
	return out, nil
}

// QueryEntries returns matching entries, oldest first.
func (s *MongoStorage) QueryEntries(ctx context.Context, c Criteria) ([]Entry, error) {
	var out []Entry
	if err := s.find(ctx, s.entries, c, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Timestamp = out[i].Timestamp.UTC()
	}
	return out, nil
}

func (s *MongoStorage) find(ctx context.Context, coll *mongo.Collection, c Criteria, out any) error {
	if err := c.validate(); err != nil {
		return err
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	if c.Limit > 0 {
		opts.SetLimit(int64(c.Limit))
	}

	cur, err := coll.Find(ctx, mongoFilter(c), opts)
	if err != nil {
		return fmt.Errorf("audit: find in %s: %w", coll.Name(), err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("audit: decode %s: %w", coll.Name(), err)
	}
	return nil
}

// PurgeOlderThan deletes the tenant's records older than cutoff.
func (s *MongoStorage) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	filter := bson.M{"tenant_id": tenantID, "timestamp": bson.M{"$lt": cutoff}}

	var n int64
	for _, coll := range []*mongo.Collection{s.entries, s.events} {
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return n, fmt.Errorf("audit: purge %s: %w", coll.Name(), err)
		}
		n += res.DeletedCount
	}
	return n, nil
}

// Tenants lists tenants owning at least one record.
func (s *MongoStorage) Tenants(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, coll := range []*mongo.Collection{s.events, s.entries} {
		var ids []string
		if err := coll.Distinct(ctx, "tenant_id", bson.M{}).Decode(&ids); err != nil {
			return nil, fmt.Errorf("audit: distinct tenants in %s: %w", coll.Name(), err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func mongoFilter(c Criteria) bson.M {
	filter := bson.M{"tenant_id": c.TenantID}
	if c.SessionID != "" {
		filter["session_id"] = c.SessionID
	}
	if c.UserID != "" {
		filter["user_id"] = c.UserID
	}
	if len(c.Types) > 0 {
		filter["event_type"] = bson.M{"$in": c.Types}
	}

	ts := bson.M{}
	if !c.Since.IsZero() {
		ts["$gte"] = c.Since
	}
	if !c.Until.IsZero() {
		ts["$lt"] = c.Until
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}
	return filter
}
