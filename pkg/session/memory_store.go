package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/token"
)

// MemoryStore implements Store in process memory. A single mutex serializes
// every operation, which makes PutCapped atomic. Expired records are dropped
// lazily when touched.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryEntry
	tokens  map[string]string   // token digest -> session id
	index   map[userKey][]string // oldest first
	opts    storeOptions
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

type userKey struct {
	tenantID string
	userID   string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		records: make(map[string]*memoryEntry),
		tokens:  make(map[string]string),
		index:   make(map[userKey][]string),
		opts:    o,
	}
}

func (m *MemoryStore) Put(ctx context.Context, rec Record, ttl time.Duration) error {
	_, err := m.put(ctx, rec, ttl, 0)
	return err
}

func (m *MemoryStore) PutCapped(ctx context.Context, rec Record, ttl time.Duration, maxSessions int) ([]string, error) {
	if maxSessions < 1 {
		return nil, ErrInvalidParams
	}
	return m.put(ctx, rec, ttl, maxSessions)
}

func (m *MemoryStore) put(ctx context.Context, rec Record, ttl time.Duration, maxSessions int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRecord(rec, ttl); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	if old, ok := m.live(rec.ID, now); ok {
		m.drop(old.rec)
	}

	m.records[rec.ID] = &memoryEntry{rec: rec.clone(), expiresAt: now.Add(ttl)}
	m.tokens[tokenDigest(m.opts.tokenKey, token.Access, rec.AccessToken)] = rec.ID
	m.tokens[tokenDigest(m.opts.tokenKey, token.Refresh, rec.RefreshToken)] = rec.ID

	uk := userKey{rec.TenantID, rec.UserID}
	ids := m.prune(uk, now)
	ids = slices.DeleteFunc(ids, func(id string) bool { return id == rec.ID })
	ids = append(ids, rec.ID)

	var evicted []string
	if maxSessions > 0 && len(ids) > maxSessions {
		evicted = slices.Clone(ids[:len(ids)-maxSessions])
		ids = slices.Clone(ids[len(ids)-maxSessions:])
		for _, id := range evicted {
			if e, ok := m.records[id]; ok {
				m.drop(e.rec)
			}
		}
	}
	m.index[uk] = ids

	return evicted, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(id, m.opts.now())
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.rec.clone(), nil
}

func (m *MemoryStore) GetByToken(ctx context.Context, kind token.Kind, tok string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if tok == "" {
		return Record{}, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tokens[tokenDigest(m.opts.tokenKey, kind, tok)]
	if !ok {
		return Record{}, ErrNotFound
	}
	e, ok := m.live(id, m.opts.now())
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.rec.clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Record) error) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(id, m.opts.now())
	if !ok {
		return Record{}, ErrNotFound
	}

	next := e.rec.clone()
	if err := fn(&next); err != nil {
		return Record{}, err
	}
	if err := checkImmutable(e.rec, next); err != nil {
		return Record{}, err
	}

	if next.AccessToken != e.rec.AccessToken {
		delete(m.tokens, tokenDigest(m.opts.tokenKey, token.Access, e.rec.AccessToken))
		m.tokens[tokenDigest(m.opts.tokenKey, token.Access, next.AccessToken)] = id
	}
	if next.RefreshToken != e.rec.RefreshToken {
		delete(m.tokens, tokenDigest(m.opts.tokenKey, token.Refresh, e.rec.RefreshToken))
		m.tokens[tokenDigest(m.opts.tokenKey, token.Refresh, next.RefreshToken)] = id
	}

	e.rec = next.clone()
	return next, nil
}

func (m *MemoryStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(id, m.opts.now())
	if !ok {
		return false, nil
	}
	m.drop(e.rec)

	uk := userKey{e.rec.TenantID, e.rec.UserID}
	m.index[uk] = slices.DeleteFunc(m.index[uk], func(s string) bool { return s == id })
	if len(m.index[uk]) == 0 {
		delete(m.index, uk)
	}
	return true, nil
}

func (m *MemoryStore) ListActive(ctx context.Context, tenantID, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uk := userKey{tenantID, userID}
	ids := m.prune(uk, m.opts.now())
	if len(ids) == 0 {
		delete(m.index, uk)
		return nil, nil
	}
	m.index[uk] = ids
	return slices.Clone(ids), nil
}

// live returns the entry if present and unexpired, dropping it otherwise.
// Callers hold m.mu.
func (m *MemoryStore) live(id string, now time.Time) (*memoryEntry, bool) {
	e, ok := m.records[id]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		m.drop(e.rec)
		return nil, false
	}
	return e, true
}

// drop removes a record and its tokens but leaves the user index to the caller.
func (m *MemoryStore) drop(rec Record) {
	delete(m.records, rec.ID)
	delete(m.tokens, tokenDigest(m.opts.tokenKey, token.Access, rec.AccessToken))
	delete(m.tokens, tokenDigest(m.opts.tokenKey, token.Refresh, rec.RefreshToken))
}

// prune returns the user's index without ids whose records are gone.
func (m *MemoryStore) prune(uk userKey, now time.Time) []string {
	ids := m.index[uk]
	return slices.DeleteFunc(ids, func(id string) bool {
		_, ok := m.live(id, now)
		return !ok
	})
}

func validateRecord(rec Record, ttl time.Duration) error {
	switch {
	case rec.ID == "", rec.TenantID == "", rec.UserID == "":
		return ErrInvalidParams
	case rec.AccessToken == "", rec.RefreshToken == "":
		return ErrInvalidParams
	case ttl <= 0:
		return ErrInvalidParams
	}
	return nil
}

func checkImmutable(before, after Record) error {
	if after.ID != before.ID || after.TenantID != before.TenantID || after.UserID != before.UserID {
		return ErrImmutableField
	}
	if after.AccessToken == "" || after.RefreshToken == "" {
		return ErrInvalidParams
	}
	return nil
}
