package ratelimit

import (
	"context"
	"time"
)

type fixedWindowState struct {
	windowStart time.Time
	count       int
}

// FixedWindow counts requests in windows aligned to floor(now/window)*window.
// Up to twice the limit can pass around a window boundary; that is the
// price of O(1) state per key.
type FixedWindow struct {
	limit   Limit
	now     func() time.Time
	buckets buckets[fixedWindowState]
}

// NewFixedWindow returns an in-memory fixed window limiter.
func NewFixedWindow(limit Limit, now func() time.Time) *FixedWindow {
	if now == nil {
		now = time.Now
	}
	return &FixedWindow{limit: limit, now: now}
}

func windowStart(t time.Time, window time.Duration) time.Time {
	w := window.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/w)*w).In(t.Location())
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *FixedWindow) AllowN(_ context.Context, key string, n int) (*Result, error) {
	now := l.now()
	start := windowStart(now, l.limit.Window)

	var res Result
	l.buckets.with(key, now, func(s *fixedWindowState) {
		if !s.windowStart.Equal(start) {
			s.windowStart = start
			s.count = 0
		}

		res.Allowed = s.count+n <= l.limit.Requests
		if res.Allowed {
			s.count += n
		}
		res.Remaining = max(l.limit.Requests-s.count, 0)
	})

	res.Limit = l.limit.Requests
	res.ResetAfter = start.Add(l.limit.Window).Sub(now)
	if !res.Allowed {
		res.RetryAfter = res.ResetAfter
	}
	return &res, nil
}

func (l *FixedWindow) GetLimit() Limit { return l.limit }

func (l *FixedWindow) Reset(_ context.Context, key string) error {
	l.buckets.remove(key)
	return nil
}

// Sweep drops keys idle for a full window.
func (l *FixedWindow) Sweep(now time.Time) int {
	return l.buckets.sweep(now.Add(-l.limit.Window))
}
