package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFixedWindow is a fixed window limiter whose counters live in Redis so
// every gateway instance shares them.
//
// Keys:
//
//	<prefix>:rl:<key>:<windowStartMs>  counter, expires at the window end
type RedisFixedWindow struct {
	redis  redis.UniversalClient
	prefix string
	limit  Limit
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisFixedWindow returns a Redis-backed fixed window limiter.
func NewRedisFixedWindow(client redis.UniversalClient, prefix string, limit Limit, now func() time.Time, logger *zap.Logger) *RedisFixedWindow {
	if prefix == "" {
		prefix = "goguard"
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFixedWindow{redis: client, prefix: prefix, limit: limit, now: now, logger: logger}
}

func (l *RedisFixedWindow) counterKey(key string, start time.Time) string {
	return l.prefix + ":rl:" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

func (l *RedisFixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *RedisFixedWindow) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	now := l.now()
	start := windowStart(now, l.limit.Window)
	end := start.Add(l.limit.Window)
	counter := l.counterKey(key, start)

	count, err := l.incrementWithTTL(ctx, counter, int64(n), end.Sub(now))
	if err != nil {
		l.logger.Warn("rate limit counter unavailable", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	res := &Result{
		Limit:      l.limit.Requests,
		ResetAfter: end.Sub(now),
	}
	if count <= int64(l.limit.Requests) {
		res.Allowed = true
		res.Remaining = l.limit.Requests - int(count)
		return res, nil
	}

	// Only admitted requests stay counted.
	if err := l.redis.DecrBy(ctx, counter, int64(n)).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	res.RetryAfter = res.ResetAfter
	res.Remaining = max(l.limit.Requests-int(count)+n, 0)
	return res, nil
}

// incrementWithTTL sets the expiry only on the first hit of a window.
func (l *RedisFixedWindow) incrementWithTTL(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	count, err := l.redis.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == n {
		if ttl < time.Millisecond {
			ttl = time.Millisecond
		}
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func (l *RedisFixedWindow) GetLimit() Limit { return l.limit }

// Reset clears the counter of the current window.
func (l *RedisFixedWindow) Reset(ctx context.Context, key string) error {
	start := windowStart(l.now(), l.limit.Window)
	if err := l.redis.Del(ctx, l.counterKey(key, start)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
