package session

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dmitrymomot/sessionkit/pkg/token"
)

// Store keeps session records under a TTL, an index from token digests to
// session ids, and a per-(tenant, user) index ordered by creation.
//
// Implementations return ErrNotFound for absent or expired records and wrap
// infrastructure failures with ErrStoreUnavailable.
type Store interface {
	// Put stores rec for ttl and appends it to its user's index without a cap.
	Put(ctx context.Context, rec Record, ttl time.Duration) error

	// PutCapped stores rec like Put, then evicts the oldest sessions of the
	// same user until at most maxSessions remain, in one atomic step.
	// It returns the ids of the evicted sessions, oldest first.
	PutCapped(ctx context.Context, rec Record, ttl time.Duration, maxSessions int) ([]string, error)

	// Get returns the record with the given id.
	Get(ctx context.Context, id string) (Record, error)

	// GetByToken resolves an access or refresh token to its record.
	GetByToken(ctx context.Context, kind token.Kind, tok string) (Record, error)

	// Update applies fn to the current record atomically and stores the result,
	// keeping the record's remaining TTL. Token changes move the token index.
	// An error from fn aborts the update and is returned as is.
	Update(ctx context.Context, id string, fn func(*Record) error) (Record, error)

	// Remove deletes the record, its tokens and its index entry. It reports
	// whether a record was removed; removing an absent record is not an error.
	Remove(ctx context.Context, id string) (bool, error)

	// ListActive returns the ids of the user's live sessions, oldest first.
	ListActive(ctx context.Context, tenantID, userID string) ([]string, error)
}

// tokenDigest derives the index key of a token. Raw tokens never become keys.
func tokenDigest(key []byte, kind token.Kind, tok string) string {
	h, err := blake2b.New256(key)
	if err != nil {
		// only possible with a key longer than 64 bytes, rejected by the options
		panic(err)
	}
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(tok))
	return hex.EncodeToString(h.Sum(nil))
}

// StoreOption configures the token digest of a store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	tokenKey  []byte
	keyPrefix string
	now       func() time.Time
}

func defaultStoreOptions() storeOptions {
	return storeOptions{keyPrefix: "sess:", now: time.Now}
}

// WithTokenKey keys the token digest, so a leaked keyspace cannot be matched
// against candidate tokens. Keys longer than 64 bytes are truncated.
func WithTokenKey(key []byte) StoreOption {
	return func(o *storeOptions) {
		if len(key) > blake2b.Size {
			key = key[:blake2b.Size]
		}
		o.tokenKey = key
	}
}

// WithKeyPrefix namespaces every Redis key. Ignored by MemoryStore.
func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithStoreClock overrides the time source used for TTLs.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}
