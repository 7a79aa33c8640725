package ratelimit

import (
	"context"
	"math"
	"time"
)

type leakyBucketState struct {
	level float64
	last  time.Time
}

// LeakyBucket models a queue of capacity Requests that drains at
// Requests/Window. Each request adds one unit and is admitted while the
// level is below capacity, so a partly drained bucket may overshoot by less
// than one unit.
type LeakyBucket struct {
	limit   Limit
	rate    float64 // units drained per nanosecond
	now     func() time.Time
	buckets buckets[leakyBucketState]
}

// NewLeakyBucket returns an in-memory leaky bucket limiter.
func NewLeakyBucket(limit Limit, now func() time.Time) *LeakyBucket {
	if now == nil {
		now = time.Now
	}
	return &LeakyBucket{
		limit: limit,
		rate:  float64(limit.Requests) / float64(limit.Window.Nanoseconds()),
		now:   now,
	}
}

func (l *LeakyBucket) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *LeakyBucket) AllowN(_ context.Context, key string, n int) (*Result, error) {
	now := l.now()
	capacity := float64(l.limit.Requests)

	res := Result{Limit: l.limit.Requests}
	l.buckets.with(key, now, func(s *leakyBucketState) {
		if !s.last.IsZero() {
			if elapsed := now.Sub(s.last); elapsed > 0 {
				s.level = math.Max(0, s.level-float64(elapsed.Nanoseconds())*l.rate)
			}
		}
		s.last = now

		// The last of n units must arrive while the level is below capacity.
		if over := s.level + float64(n-1) - capacity; over < 0 {
			s.level += float64(n)
			res.Allowed = true
		} else {
			res.RetryAfter = time.Duration(math.Ceil(over/l.rate)) + 1
		}
		res.Remaining = int(math.Max(0, math.Ceil(capacity-s.level)))
		res.ResetAfter = time.Duration(math.Ceil(s.level / l.rate))
	})
	return &res, nil
}

func (l *LeakyBucket) GetLimit() Limit { return l.limit }

func (l *LeakyBucket) Reset(_ context.Context, key string) error {
	l.buckets.remove(key)
	return nil
}

// Sweep drops keys idle long enough to have drained.
func (l *LeakyBucket) Sweep(now time.Time) int {
	return l.buckets.sweep(now.Add(-l.limit.Window))
}
