package ratelimit

import (
	"sync"
	"time"
)

type bucketEntry[S any] struct {
	mu       sync.Mutex
	state    S
	lastSeen time.Time
	dead     bool
}

// buckets is a concurrent map of per-key state with its own mutex per key.
// Entries removed by sweep are marked dead so a caller holding a stale
// pointer retries against a fresh entry instead of updating an orphan.
type buckets[S any] struct {
	m sync.Map
}

func (b *buckets[S]) with(key string, now time.Time, fn func(s *S)) {
	for {
		v, ok := b.m.Load(key)
		if !ok {
			v, _ = b.m.LoadOrStore(key, &bucketEntry[S]{})
		}
		e := v.(*bucketEntry[S])

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		e.lastSeen = now
		fn(&e.state)
		e.mu.Unlock()
		return
	}
}

func (b *buckets[S]) remove(key string) {
	v, ok := b.m.Load(key)
	if !ok {
		return
	}
	e := v.(*bucketEntry[S])
	e.mu.Lock()
	e.dead = true
	b.m.Delete(key)
	e.mu.Unlock()
}

// sweep drops entries not seen since idleBefore.
func (b *buckets[S]) sweep(idleBefore time.Time) int {
	removed := 0
	b.m.Range(func(k, v any) bool {
		e := v.(*bucketEntry[S])
		e.mu.Lock()
		if e.lastSeen.Before(idleBefore) {
			e.dead = true
			b.m.Delete(k)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

func (b *buckets[S]) len() int {
	n := 0
	b.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
