package ratelimit

import (
	"context"
	"math"
	"time"
)

type tokenBucketState struct {
	initialized bool
	tokens      float64
	last        time.Time
	burstStart  time.Time
	burstCount  int
}

// TokenBucket holds up to Requests tokens per key, refilled continuously at
// Requests/Window. When Burst is set, at most Burst tokens may be spent in
// any BurstWindow even if the bucket is full.
type TokenBucket struct {
	limit   Limit
	rate    float64 // tokens per nanosecond
	now     func() time.Time
	buckets buckets[tokenBucketState]
}

// NewTokenBucket returns an in-memory token bucket limiter.
func NewTokenBucket(limit Limit, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		limit: limit,
		rate:  float64(limit.Requests) / float64(limit.Window.Nanoseconds()),
		now:   now,
	}
}

func (l *TokenBucket) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *TokenBucket) AllowN(_ context.Context, key string, n int) (*Result, error) {
	now := l.now()
	capacity := float64(l.limit.Requests)

	res := Result{Limit: l.limit.Requests}
	l.buckets.with(key, now, func(s *tokenBucketState) {
		if !s.initialized {
			s.initialized = true
			s.tokens = capacity
			s.last = now
		}
		if elapsed := now.Sub(s.last); elapsed > 0 {
			s.tokens = math.Min(capacity, s.tokens+float64(elapsed.Nanoseconds())*l.rate)
			s.last = now
		}

		burstLimited := false
		if l.limit.Burst > 0 {
			if !now.Before(s.burstStart.Add(l.limit.BurstWindow)) {
				s.burstStart = now
				s.burstCount = 0
			}
			if s.burstCount+n > l.limit.Burst {
				burstLimited = true
				res.RetryAfter = s.burstStart.Add(l.limit.BurstWindow).Sub(now)
			}
		}

		if !burstLimited && s.tokens >= float64(n) {
			s.tokens -= float64(n)
			s.burstCount += n
			res.Allowed = true
		} else if !burstLimited {
			res.RetryAfter = l.durationFor(float64(n) - s.tokens)
		}

		res.Remaining = int(math.Floor(s.tokens))
		res.ResetAfter = l.durationFor(capacity - s.tokens)
	})
	return &res, nil
}

func (l *TokenBucket) durationFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(tokens / l.rate))
}

func (l *TokenBucket) GetLimit() Limit { return l.limit }

func (l *TokenBucket) Reset(_ context.Context, key string) error {
	l.buckets.remove(key)
	return nil
}

// Sweep drops keys idle long enough to have refilled completely.
func (l *TokenBucket) Sweep(now time.Time) int {
	return l.buckets.sweep(now.Add(-l.limit.Window))
}
