package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/session"
	"github.com/dmitrymomot/sessionkit/pkg/token"
)

type storeHarness struct {
	store   session.Store
	advance func(time.Duration)
}

type harnessFactory func(t *testing.T) storeHarness

func memoryHarness(t *testing.T) storeHarness {
	t.Helper()
	clock := newTestClock()
	return storeHarness{
		store:   session.NewMemoryStore(session.WithStoreClock(clock.Now), session.WithTokenKey([]byte("test-key"))),
		advance: clock.Advance,
	}
}

func redisHarness(t *testing.T) storeHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storeHarness{
		store:   session.NewRedisStore(client, session.WithTokenKey([]byte("test-key"))),
		advance: mr.FastForward,
	}
}

var harnesses = map[string]harnessFactory{
	"memory": memoryHarness,
	"redis":  redisHarness,
}

func TestStore_PutAndGet(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()
			rec := testRecord("t1", "u1", "s1", baseTime)

			require.NoError(t, h.store.Put(ctx, rec, time.Hour))

			got, err := h.store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, rec.AccessToken, got.AccessToken)
			assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
			assert.Equal(t, rec.Metadata, got.Metadata)

			byAccess, err := h.store.GetByToken(ctx, token.Access, rec.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, "s1", byAccess.ID)

			byRefresh, err := h.store.GetByToken(ctx, token.Refresh, rec.RefreshToken)
			require.NoError(t, err)
			assert.Equal(t, "s1", byRefresh.ID)

			_, err = h.store.GetByToken(ctx, token.Refresh, rec.AccessToken)
			assert.ErrorIs(t, err, session.ErrNotFound, "an access token is not a refresh token")

			_, err = h.store.Get(ctx, "missing")
			assert.ErrorIs(t, err, session.ErrNotFound)
			_, err = h.store.GetByToken(ctx, token.Access, "")
			assert.ErrorIs(t, err, session.ErrNotFound)
		})
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			noTenant := testRecord("", "u1", "s1", baseTime)
			assert.ErrorIs(t, h.store.Put(ctx, noTenant, time.Hour), session.ErrInvalidParams)

			noToken := testRecord("t1", "u1", "s1", baseTime)
			noToken.RefreshToken = ""
			assert.ErrorIs(t, h.store.Put(ctx, noToken, time.Hour), session.ErrInvalidParams)

			valid := testRecord("t1", "u1", "s1", baseTime)
			assert.ErrorIs(t, h.store.Put(ctx, valid, 0), session.ErrInvalidParams)

			_, err := h.store.PutCapped(ctx, valid, time.Hour, 0)
			assert.ErrorIs(t, err, session.ErrInvalidParams)
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()
			rec := testRecord("t1", "u1", "s1", baseTime)

			require.NoError(t, h.store.Put(ctx, rec, time.Minute))
			h.advance(2 * time.Minute)

			_, err := h.store.Get(ctx, "s1")
			assert.ErrorIs(t, err, session.ErrNotFound)
			_, err = h.store.GetByToken(ctx, token.Access, rec.AccessToken)
			assert.ErrorIs(t, err, session.ErrNotFound)

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Empty(t, ids)

			_, err = h.store.Update(ctx, "s1", func(*session.Record) error { return nil })
			assert.ErrorIs(t, err, session.ErrNotFound)
		})
	}
}

func TestStore_PutCappedEvictsOldest(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			var evicted []string
			for i := range 4 {
				rec := testRecord("t1", "u1", fmt.Sprintf("s%d", i+1), baseTime.Add(time.Duration(i)*time.Second))
				out, err := h.store.PutCapped(ctx, rec, time.Hour, 2)
				require.NoError(t, err)
				evicted = append(evicted, out...)
			}

			assert.Equal(t, []string{"s1", "s2"}, evicted)

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"s3", "s4"}, ids)

			_, err = h.store.Get(ctx, "s1")
			assert.ErrorIs(t, err, session.ErrNotFound)
			_, err = h.store.GetByToken(ctx, token.Access, "at-s2")
			assert.ErrorIs(t, err, session.ErrNotFound)
			_, err = h.store.GetByToken(ctx, token.Refresh, "rt-s2")
			assert.ErrorIs(t, err, session.ErrNotFound)
		})
	}
}

func TestStore_PutCappedKeepsInsertionOrderOnTies(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			for _, id := range []string{"b", "a", "c"} {
				_, err := h.store.PutCapped(ctx, testRecord("t1", "u1", id, baseTime), time.Hour, 5)
				require.NoError(t, err)
			}

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"b", "a", "c"}, ids)
		})
	}
}

func TestStore_CapIsPerTenantAndUser(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			_, err := h.store.PutCapped(ctx, testRecord("t1", "u1", "a", baseTime), time.Hour, 1)
			require.NoError(t, err)
			evicted, err := h.store.PutCapped(ctx, testRecord("t2", "u1", "b", baseTime), time.Hour, 1)
			require.NoError(t, err)
			assert.Empty(t, evicted)
			evicted, err = h.store.PutCapped(ctx, testRecord("t1", "u2", "c", baseTime), time.Hour, 1)
			require.NoError(t, err)
			assert.Empty(t, evicted)

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, ids)
		})
	}
}

func TestStore_CapIsolatesIDsContainingColons(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			_, err := h.store.PutCapped(ctx, testRecord("acme:x", "y", "a", baseTime), time.Hour, 1)
			require.NoError(t, err)
			evicted, err := h.store.PutCapped(ctx, testRecord("acme", "x:y", "b", baseTime.Add(time.Second)), time.Hour, 1)
			require.NoError(t, err)
			assert.Empty(t, evicted)

			ids, err := h.store.ListActive(ctx, "acme:x", "y")
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, ids)

			ids, err = h.store.ListActive(ctx, "acme", "x:y")
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, ids)
		})
	}
}

func TestStore_PutReplacesExistingRecord(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			rec := testRecord("t1", "u1", "s1", baseTime)
			require.NoError(t, h.store.Put(ctx, rec, time.Hour))

			rec.AccessToken = "at-new"
			require.NoError(t, h.store.Put(ctx, rec, time.Hour))

			_, err := h.store.GetByToken(ctx, token.Access, "at-s1")
			assert.ErrorIs(t, err, session.ErrNotFound)
			got, err := h.store.GetByToken(ctx, token.Access, "at-new")
			require.NoError(t, err)
			assert.Equal(t, "s1", got.ID)

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"s1"}, ids)
		})
	}
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("applies changes and moves tokens", func(t *testing.T) {
				t.Parallel()
				h := factory(t)
				ctx := context.Background()
				require.NoError(t, h.store.Put(ctx, testRecord("t1", "u1", "s1", baseTime), time.Hour))

				updated, err := h.store.Update(ctx, "s1", func(r *session.Record) error {
					r.RequestCount++
					r.AccessToken = "at-rotated"
					r.RefreshToken = "rt-rotated"
					return nil
				})
				require.NoError(t, err)
				assert.Equal(t, int64(1), updated.RequestCount)

				_, err = h.store.GetByToken(ctx, token.Access, "at-s1")
				assert.ErrorIs(t, err, session.ErrNotFound)
				_, err = h.store.GetByToken(ctx, token.Refresh, "rt-s1")
				assert.ErrorIs(t, err, session.ErrNotFound)

				got, err := h.store.GetByToken(ctx, token.Refresh, "rt-rotated")
				require.NoError(t, err)
				assert.Equal(t, int64(1), got.RequestCount)
				assert.Equal(t, "at-rotated", got.AccessToken)
			})

			t.Run("returns the callback error untouched", func(t *testing.T) {
				t.Parallel()
				h := factory(t)
				ctx := context.Background()
				require.NoError(t, h.store.Put(ctx, testRecord("t1", "u1", "s1", baseTime), time.Hour))

				boom := errors.New("boom")
				_, err := h.store.Update(ctx, "s1", func(r *session.Record) error {
					r.RequestCount = 99
					return boom
				})
				assert.Same(t, boom, err)

				got, err := h.store.Get(ctx, "s1")
				require.NoError(t, err)
				assert.Zero(t, got.RequestCount)
			})

			t.Run("refuses owner changes", func(t *testing.T) {
				t.Parallel()
				h := factory(t)
				ctx := context.Background()
				require.NoError(t, h.store.Put(ctx, testRecord("t1", "u1", "s1", baseTime), time.Hour))

				_, err := h.store.Update(ctx, "s1", func(r *session.Record) error {
					r.TenantID = "t2"
					return nil
				})
				assert.ErrorIs(t, err, session.ErrImmutableField)
			})

			t.Run("keeps the remaining ttl", func(t *testing.T) {
				t.Parallel()
				h := factory(t)
				ctx := context.Background()
				require.NoError(t, h.store.Put(ctx, testRecord("t1", "u1", "s1", baseTime), time.Minute))

				h.advance(30 * time.Second)
				_, err := h.store.Update(ctx, "s1", func(r *session.Record) error {
					r.AccessToken = "at-later"
					return nil
				})
				require.NoError(t, err)

				h.advance(40 * time.Second)
				_, err = h.store.Get(ctx, "s1")
				assert.ErrorIs(t, err, session.ErrNotFound)
				_, err = h.store.GetByToken(ctx, token.Access, "at-later")
				assert.ErrorIs(t, err, session.ErrNotFound)
			})

			t.Run("unknown id", func(t *testing.T) {
				t.Parallel()
				h := factory(t)
				_, err := h.store.Update(context.Background(), "nope", func(*session.Record) error { return nil })
				assert.ErrorIs(t, err, session.ErrNotFound)
			})
		})
	}
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, testRecord("t1", "u1", "s1", baseTime), time.Hour))
			require.NoError(t, h.store.Put(ctx, testRecord("t1", "u1", "s2", baseTime), time.Hour))

			removed, err := h.store.Remove(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = h.store.Remove(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, removed, "second remove is a no-op")

			removed, err = h.store.Remove(ctx, "never-existed")
			require.NoError(t, err)
			assert.False(t, removed)

			_, err = h.store.GetByToken(ctx, token.Access, "at-s1")
			assert.ErrorIs(t, err, session.ErrNotFound)

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"s2"}, ids)
		})
	}
}

func TestStore_ConcurrentPutCappedNeverExceedsCap(t *testing.T) {
	t.Parallel()

	const (
		writers = 20
		limit   = 3
	)

	for name, factory := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := factory(t)
			ctx := context.Background()

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				evicted []string
			)
			for i := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					out, err := h.store.PutCapped(ctx, testRecord("t1", "u1", fmt.Sprintf("c%02d", i), baseTime), time.Hour, limit)
					assert.NoError(t, err)
					mu.Lock()
					evicted = append(evicted, out...)
					mu.Unlock()
				}()
			}
			wg.Wait()

			ids, err := h.store.ListActive(ctx, "t1", "u1")
			require.NoError(t, err)
			assert.Len(t, ids, limit)
			assert.Len(t, evicted, writers-limit)

			seen := make(map[string]bool)
			for _, id := range append(evicted, ids...) {
				assert.False(t, seen[id], "id %s reported twice", id)
				seen[id] = true
			}
			assert.Len(t, seen, writers)

			for _, id := range ids {
				_, err := h.store.Get(ctx, id)
				assert.NoError(t, err)
			}
			for _, id := range evicted {
				_, err := h.store.Get(ctx, id)
				assert.ErrorIs(t, err, session.ErrNotFound)
			}
		})
	}
}
