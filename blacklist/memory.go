package blacklist

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// Memory is an in-process Blacklist sharded by jti hash. Expired entries are
// ignored by lookups and removed by Sweep.
type Memory struct {
	shards [shardCount]shard
	now    func() time.Time
}

// NewMemory returns an empty Memory blacklist. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	m := &Memory{now: now}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]time.Time)
	}
	return m
}

func (m *Memory) shardFor(jti string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jti))
	return &m.shards[h.Sum32()%shardCount]
}

func (m *Memory) retainUntil(expiresAt time.Time) time.Time {
	floor := m.now().Add(minRetention)
	if expiresAt.Before(floor) {
		return floor
	}
	return expiresAt
}

func (m *Memory) Add(_ context.Context, jti string, expiresAt time.Time) error {
	s := m.shardFor(jti)
	s.mu.Lock()
	s.entries[jti] = m.retainUntil(expiresAt)
	s.mu.Unlock()
	return nil
}

func (m *Memory) Contains(_ context.Context, jti string) (bool, error) {
	s := m.shardFor(jti)
	s.mu.Lock()
	until, ok := s.entries[jti]
	s.mu.Unlock()
	return ok && m.now().Before(until), nil
}

func (m *Memory) Consume(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s := m.shardFor(jti)
	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.entries[jti]; ok && m.now().Before(until) {
		return true, nil
	}
	s.entries[jti] = m.retainUntil(expiresAt)
	return false, nil
}

func (m *Memory) Release(_ context.Context, jti string) error {
	s := m.shardFor(jti)
	s.mu.Lock()
	delete(s.entries, jti)
	s.mu.Unlock()
	return nil
}

// Sweep drops entries that expired before now and returns how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for jti, until := range s.entries {
			if !now.Before(until) {
				delete(s.entries, jti)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
