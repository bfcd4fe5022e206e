package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionkit/pkg/token"
)

// Key layout, all under the configured prefix:
//
//	rec:<id>                 HASH   data (JSON Record), akey, rkey, idx
//	tok:<digest>             STRING session id, one per access and refresh token
//	idx:<n>:<tenant>:<user>  ZSET   session ids scored by creation order; n is len(tenant)
//
// Record and token keys carry the record TTL. The index is pruned of ids
// whose record has expired whenever a session is inserted or listed.
//
// Scripts touch keys derived inside Lua, so RedisStore needs a single-node
// (or sentinel) deployment rather than Redis Cluster.

// KEYS[1] = record key, KEYS[2] = access token key, KEYS[3] = refresh token key,
// KEYS[4] = user index key
// ARGV[1] = record JSON, ARGV[2] = ttl ms, ARGV[3] = score, ARGV[4] = session id,
// ARGV[5] = max sessions (0 = no cap), ARGV[6] = record key prefix
// Returns the evicted ids, oldest first.
const luaPutCapped = `
local rec, akey, rkey, idx = KEYS[1], KEYS[2], KEYS[3], KEYS[4]
local ttl = tonumber(ARGV[2])
local id = ARGV[4]
local maxn = tonumber(ARGV[5])
local recPrefix = ARGV[6]

local prev = redis.call("HMGET", rec, "akey", "rkey")
if prev[1] then redis.call("DEL", prev[1]) end
if prev[2] then redis.call("DEL", prev[2]) end

redis.call("HSET", rec, "data", ARGV[1], "akey", akey, "rkey", rkey, "idx", idx)
redis.call("PEXPIRE", rec, ttl)
redis.call("SET", akey, id, "PX", ttl)
redis.call("SET", rkey, id, "PX", ttl)

redis.call("ZREM", idx, id)
local score = tonumber(ARGV[3])
local top = redis.call("ZRANGE", idx, -1, -1, "WITHSCORES")
if top[2] and tonumber(top[2]) >= score then
  score = tonumber(top[2]) + 1
end
redis.call("ZADD", idx, score, id)

for _, m in ipairs(redis.call("ZRANGE", idx, 0, -1)) do
  if redis.call("EXISTS", recPrefix .. m) == 0 then
    redis.call("ZREM", idx, m)
  end
end

local evicted = {}
if maxn > 0 then
  local excess = redis.call("ZCARD", idx) - maxn
  if excess > 0 then
    for _, m in ipairs(redis.call("ZRANGE", idx, 0, excess - 1)) do
      local k = recPrefix .. m
      local toks = redis.call("HMGET", k, "akey", "rkey")
      if toks[1] then redis.call("DEL", toks[1]) end
      if toks[2] then redis.call("DEL", toks[2]) end
      redis.call("DEL", k)
      redis.call("ZREM", idx, m)
      table.insert(evicted, m)
    end
  end
end

if redis.call("PTTL", idx) < ttl then
  redis.call("PEXPIRE", idx, ttl)
end
return evicted
`

// KEYS[1] = record key, ARGV[1] = session id
// Returns 1 when a record was removed, 0 otherwise.
const luaRemove = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local f = redis.call("HMGET", KEYS[1], "akey", "rkey", "idx")
if f[1] then redis.call("DEL", f[1]) end
if f[2] then redis.call("DEL", f[2]) end
if f[3] then redis.call("ZREM", f[3], ARGV[1]) end
redis.call("DEL", KEYS[1])
return 1
`

const maxUpdateRetries = 10

// RedisStore implements Store on Redis.
type RedisStore struct {
	client    redis.UniversalClient
	putCapped *redis.Script
	remove    *redis.Script
	opts      storeOptions
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client.
func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{
		client:    client,
		putCapped: redis.NewScript(luaPutCapped),
		remove:    redis.NewScript(luaRemove),
		opts:      o,
	}
}

func (s *RedisStore) recordKey(id string) string { return s.opts.keyPrefix + "rec:" + id }

func (s *RedisStore) tokenKey(kind token.Kind, tok string) string {
	return s.opts.keyPrefix + "tok:" + tokenDigest(s.opts.tokenKey, kind, tok)
}

// indexKey length-prefixes the tenant id so that ids containing ':' cannot
// map two (tenant, user) pairs onto one index.
func (s *RedisStore) indexKey(tenantID, userID string) string {
	return s.opts.keyPrefix + "idx:" + strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" + userID
}

func (s *RedisStore) Put(ctx context.Context, rec Record, ttl time.Duration) error {
	_, err := s.put(ctx, rec, ttl, 0)
	return err
}

func (s *RedisStore) PutCapped(ctx context.Context, rec Record, ttl time.Duration, maxSessions int) ([]string, error) {
	if maxSessions < 1 {
		return nil, ErrInvalidParams
	}
	return s.put(ctx, rec, ttl, maxSessions)
}

func (s *RedisStore) put(ctx context.Context, rec Record, ttl time.Duration, maxSessions int) ([]string, error) {
	if err := validateRecord(rec, ttl); err != nil {
		return nil, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("session: encode record: %w", err)
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = s.opts.now()
	}

	keys := []string{
		s.recordKey(rec.ID),
		s.tokenKey(token.Access, rec.AccessToken),
		s.tokenKey(token.Refresh, rec.RefreshToken),
		s.indexKey(rec.TenantID, rec.UserID),
	}
	evicted, err := s.putCapped.Run(ctx, s.client, keys,
		string(data),
		ttl.Milliseconds(),
		created.UnixMicro(),
		rec.ID,
		maxSessions,
		s.recordKey(""),
	).StringSlice()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return evicted, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}
	data, err := s.client.HGet(ctx, s.recordKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Join(ErrStoreUnavailable, err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) GetByToken(ctx context.Context, kind token.Kind, tok string) (Record, error) {
	if tok == "" {
		return Record{}, ErrNotFound
	}
	id, err := s.client.Get(ctx, s.tokenKey(kind, tok)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Join(ErrStoreUnavailable, err)
	}
	return s.Get(ctx, id)
}

// Update runs fn inside an optimistic WATCH transaction on the record key and
// retries when another writer got there first.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Record) error) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}
	key := s.recordKey(id)

	var (
		result Record
		fnErr  error
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, "data").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		current, err := decodeRecord(data)
		if err != nil {
			return err
		}
		ttl, err := tx.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		if ttl <= 0 {
			// expired between the read and now, or no TTL set by a foreign writer
			return ErrNotFound
		}

		next := current.clone()
		if fnErr = fn(&next); fnErr != nil {
			return fnErr
		}
		if err := checkImmutable(current, next); err != nil {
			return err
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("session: encode record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// HSET keeps the key's TTL
			pipe.HSet(ctx, key, "data", encoded)
			if next.AccessToken != current.AccessToken {
				akey := s.tokenKey(token.Access, next.AccessToken)
				pipe.Del(ctx, s.tokenKey(token.Access, current.AccessToken))
				pipe.Set(ctx, akey, id, ttl)
				pipe.HSet(ctx, key, "akey", akey)
			}
			if next.RefreshToken != current.RefreshToken {
				rkey := s.tokenKey(token.Refresh, next.RefreshToken)
				pipe.Del(ctx, s.tokenKey(token.Refresh, current.RefreshToken))
				pipe.Set(ctx, rkey, id, ttl)
				pipe.HSet(ctx, key, "rkey", rkey)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for range maxUpdateRetries {
		fnErr = nil
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return Record{}, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrImmutableField), errors.Is(err, ErrInvalidParams):
			return Record{}, err
		default:
			return Record{}, errors.Join(ErrStoreUnavailable, err)
		}
	}
	return Record{}, errors.Join(ErrStoreUnavailable, fmt.Errorf("session: update of %s lost %d races", id, maxUpdateRetries))
}

func (s *RedisStore) Remove(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := s.remove.Run(ctx, s.client, []string{s.recordKey(id)}, id).Int()
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisStore) ListActive(ctx context.Context, tenantID, userID string) ([]string, error) {
	idx := s.indexKey(tenantID, userID)
	ids, err := s.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	active := make([]string, 0, len(ids))
	var stale []any
	for i, id := range ids {
		if exists[i].Val() == 1 {
			active = append(active, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		// best effort, the next insert prunes too
		_ = s.client.ZRem(ctx, idx, stale...).Err()
	}
	return active, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("session: decode record: %w", err)
	}
	return rec, nil
}
