package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Blacklist shared across gateway instances. Each jti is a key
// with a TTL equal to the remaining token lifetime, so Redis expires entries
// on its own.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis blacklist. Keys are "<prefix>:bl:<jti>".
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "goguard"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, prefix: prefix, now: now}
}

func (r *Redis) key(jti string) string {
	return r.prefix + ":bl:" + jti
}

func (r *Redis) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl < minRetention {
		return minRetention
	}
	return ttl
}

func (r *Redis) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := r.client.Set(ctx, r.key(jti), 1, r.ttl(expiresAt)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Contains(ctx context.Context, jti string) (bool, error) {
	_, err := r.client.Get(ctx, r.key(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}

// Consume uses SET NX so the check and the insert are one Redis operation.
func (r *Redis) Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(jti), 1, r.ttl(expiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return !ok, nil
}

func (r *Redis) Release(ctx context.Context, jti string) error {
	if err := r.client.Del(ctx, r.key(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
