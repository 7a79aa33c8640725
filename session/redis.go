package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 8

// createSessionScript prunes dangling index members, evicts the least
// recently active sessions while the user is at the cap, then stores the new
// session. Returns the payloads of evicted sessions.
const createSessionScript = `
local user_key = KEYS[1]
local session_key = KEYS[2]
local session_prefix = ARGV[1]
local session_id = ARGV[2]
local payload = ARGV[3]
local ttl_ms = tonumber(ARGV[4])
local score = tonumber(ARGV[5])
local limit = tonumber(ARGV[6])

local members = redis.call("ZRANGE", user_key, 0, -1)
for _, sid in ipairs(members) do
  if redis.call("EXISTS", session_prefix .. sid) == 0 then
    redis.call("ZREM", user_key, sid)
  end
end

local evicted = {}
if limit > 0 then
  while redis.call("ZCARD", user_key) >= limit do
    local oldest = redis.call("ZRANGE", user_key, 0, 0)
    local victim = oldest[1]
    if not victim then
      break
    end
    local data = redis.call("GET", session_prefix .. victim)
    redis.call("DEL", session_prefix .. victim)
    redis.call("ZREM", user_key, victim)
    if data then
      table.insert(evicted, data)
    end
  end
end

redis.call("SET", session_key, payload, "PX", ttl_ms)
redis.call("ZADD", user_key, score, session_id)
return evicted
`

// deleteAllScript removes every session of a user except ARGV[2].
const deleteAllScript = `
local user_key = KEYS[1]
local session_prefix = ARGV[1]
local except = ARGV[2]

local members = redis.call("ZRANGE", user_key, 0, -1)
local removed = {}
for _, sid in ipairs(members) do
  if sid ~= except then
    local data = redis.call("GET", session_prefix .. sid)
    redis.call("DEL", session_prefix .. sid)
    redis.call("ZREM", user_key, sid)
    if data then
      table.insert(removed, data)
    end
  end
end
return removed
`

var (
	createSessionLua = redis.NewScript(createSessionScript)
	deleteAllLua     = redis.NewScript(deleteAllScript)
)

// RedisStore keeps each session as a JSON string key with a TTL at the
// session expiry, and a per-user sorted set scored by last access time.
//
// Keys:
//
//	<prefix>:sess:<sessionID>  encoded session
//	<prefix>:user:<userID>     ZSET of session ids, score = last access (ms)
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a Redis-backed Store.
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "goguard"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{redis: client, prefix: prefix, now: now}
}

func (s *RedisStore) sessionPrefix() string          { return s.prefix + ":sess:" }
func (s *RedisStore) key(sessionID string) string    { return s.sessionPrefix() + sessionID }
func (s *RedisStore) userKey(userID string) string   { return s.prefix + ":user:" + userID }
func score(t time.Time) float64                      { return float64(t.UnixMilli()) }
func (s *RedisStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

func (s *RedisStore) Create(ctx context.Context, sess *Session, limit int) ([]*Session, error) {
	stored := sess.Clone()
	stored.Active = true

	payload, err := Encode(stored)
	if err != nil {
		return nil, err
	}

	res, err := createSessionLua.Run(ctx, s.redis,
		[]string{s.userKey(stored.UserID), s.key(stored.SessionID)},
		s.sessionPrefix(),
		stored.SessionID,
		payload,
		s.ttl(stored.ExpiresAt).Milliseconds(),
		score(stored.LastAccessAt),
		limit,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return decodeAll(res, false), nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

func (s *RedisStore) Touch(ctx context.Context, sessionID string, lastAccess, expiresAt time.Time) (*Session, error) {
	return s.update(ctx, sessionID, func(cur *Session) error {
		if lastAccess.After(cur.LastAccessAt) {
			cur.LastAccessAt = lastAccess
		}
		if expiresAt.After(cur.ExpiresAt) {
			cur.ExpiresAt = expiresAt
		}
		return nil
	})
}

func (s *RedisStore) RotateRefresh(ctx context.Context, sessionID, expectedJTI string, next Rotation) (*Session, error) {
	return s.update(ctx, sessionID, func(cur *Session) error {
		if cur.RefreshJTI != expectedJTI {
			return ErrRefreshMismatch
		}
		next.apply(cur)
		return nil
	})
}

// update runs mutate inside a WATCH transaction on the session key and
// retries when another writer got there first.
func (s *RedisStore) update(ctx context.Context, sessionID string, mutate func(*Session) error) (*Session, error) {
	key := s.key(sessionID)
	var out *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		cur, err := Decode(data)
		if err != nil {
			return err
		}
		if err := mutate(cur); err != nil {
			return err
		}
		payload, err := Encode(cur)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl(cur.ExpiresAt))
			pipe.ZAdd(ctx, s.userKey(cur.UserID), redis.Z{Score: score(cur.LastAccessAt), Member: cur.SessionID})
			return nil
		})
		if err == nil {
			out = cur
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrRefreshMismatch), errors.Is(err, ErrCorrupt):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: too much contention on session", ErrRedisUnavailable)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) (*Session, error) {
	key := s.key(sessionID)
	var out *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		cur, err := Decode(data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.userKey(cur.UserID), sessionID)
			return nil
		})
		if err == nil {
			cur.Active = false
			out = cur
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: too much contention on session", ErrRedisUnavailable)
}

func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID, exceptSessionID string) ([]*Session, error) {
	res, err := deleteAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.sessionPrefix(),
		exceptSessionID,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeAll(res, false), nil
}

func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if sess, err := Decode([]byte(str)); err == nil {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Ping reports Redis availability and round-trip latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeAll(payloads []string, active bool) []*Session {
	out := make([]*Session, 0, len(payloads))
	for _, p := range payloads {
		sess, err := Decode([]byte(p))
		if err != nil {
			continue
		}
		sess.Active = active
		out = append(out, sess)
	}
	return out
}
