package ratelimit

import (
	"context"
	"time"
)

type slidingWindowState struct {
	log []time.Time
}

// SlidingWindow keeps a timestamp log per key and admits a request when
// fewer than Requests timestamps fall inside (now-window, now]. Exact, at the
// cost of O(Requests) memory per key.
type SlidingWindow struct {
	limit   Limit
	now     func() time.Time
	buckets buckets[slidingWindowState]
}

// NewSlidingWindow returns an in-memory sliding window log limiter.
func NewSlidingWindow(limit Limit, now func() time.Time) *SlidingWindow {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindow{limit: limit, now: now}
}

func (l *SlidingWindow) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *SlidingWindow) AllowN(_ context.Context, key string, n int) (*Result, error) {
	now := l.now()
	cutoff := now.Add(-l.limit.Window)

	res := Result{Limit: l.limit.Requests}
	l.buckets.with(key, now, func(s *slidingWindowState) {
		drop := 0
		for drop < len(s.log) && !s.log[drop].After(cutoff) {
			drop++
		}
		if drop > 0 {
			s.log = append(s.log[:0], s.log[drop:]...)
		}

		res.Allowed = len(s.log)+n <= l.limit.Requests
		if res.Allowed {
			for i := 0; i < n; i++ {
				s.log = append(s.log, now)
			}
		}
		res.Remaining = max(l.limit.Requests-len(s.log), 0)

		if len(s.log) > 0 {
			res.ResetAfter = s.log[0].Add(l.limit.Window).Sub(now)
			if !res.Allowed {
				// Wait until enough of the oldest entries age out.
				idx := min(len(s.log)+n-l.limit.Requests-1, len(s.log)-1)
				if idx < 0 {
					idx = 0
				}
				res.RetryAfter = s.log[idx].Add(l.limit.Window).Sub(now)
			}
		}
	})
	return &res, nil
}

func (l *SlidingWindow) GetLimit() Limit { return l.limit }

func (l *SlidingWindow) Reset(_ context.Context, key string) error {
	l.buckets.remove(key)
	return nil
}

func (l *SlidingWindow) Sweep(now time.Time) int {
	return l.buckets.sweep(now.Add(-l.limit.Window))
}
