package csrf

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type tokenShard struct {
	mu     sync.Mutex
	tokens map[[32]byte]*Token
}

type sessionShard struct {
	mu    sync.Mutex
	index map[string]map[[32]byte]struct{}
}

// store keeps token records in shards keyed by digest and a per-session
// index in shards keyed by session id. Lock order is session shard, then
// token shard.
type store struct {
	tokens   [shardCount]tokenShard
	sessions [shardCount]sessionShard
}

func newStore() *store {
	s := &store{}
	for i := range s.tokens {
		s.tokens[i].tokens = make(map[[32]byte]*Token)
		s.sessions[i].index = make(map[string]map[[32]byte]struct{})
	}
	return s
}

func (s *store) tokenShard(d [32]byte) *tokenShard {
	return &s.tokens[(uint32(d[0])|uint32(d[1])<<8)%shardCount]
}

func (s *store) sessionShard(sessionID string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.sessions[h.Sum32()%shardCount]
}

func (s *store) put(d [32]byte, t *Token) {
	ss := s.sessionShard(t.SessionID)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	ts := s.tokenShard(d)
	ts.mu.Lock()
	ts.tokens[d] = t
	ts.mu.Unlock()

	set := ss.index[t.SessionID]
	if set == nil {
		set = make(map[[32]byte]struct{})
		ss.index[t.SessionID] = set
	}
	set[d] = struct{}{}
}

// update runs fn on the record under its shard lock. It reports false when
// no record exists.
func (s *store) update(d [32]byte, fn func(*Token)) bool {
	ts := s.tokenShard(d)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.tokens[d]
	if !ok {
		return false
	}
	fn(t)
	return true
}

func (s *store) deleteSession(sessionID string) int {
	ss := s.sessionShard(sessionID)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for d := range ss.index[sessionID] {
		ts := s.tokenShard(d)
		ts.mu.Lock()
		if _, ok := ts.tokens[d]; ok {
			delete(ts.tokens, d)
			removed++
		}
		ts.mu.Unlock()
	}
	delete(ss.index, sessionID)
	return removed
}

func (s *store) sweep(now time.Time) int {
	type stale struct {
		digest    [32]byte
		sessionID string
	}
	var expired []stale
	for i := range s.tokens {
		ts := &s.tokens[i]
		ts.mu.Lock()
		for d, t := range ts.tokens {
			if !now.Before(t.ExpiresAt) {
				expired = append(expired, stale{digest: d, sessionID: t.SessionID})
			}
		}
		ts.mu.Unlock()
	}

	removed := 0
	for _, e := range expired {
		ss := s.sessionShard(e.sessionID)
		ss.mu.Lock()
		ts := s.tokenShard(e.digest)
		ts.mu.Lock()
		if t, ok := ts.tokens[e.digest]; ok && !now.Before(t.ExpiresAt) {
			delete(ts.tokens, e.digest)
			removed++
		}
		ts.mu.Unlock()
		if set := ss.index[e.sessionID]; set != nil {
			delete(set, e.digest)
			if len(set) == 0 {
				delete(ss.index, e.sessionID)
			}
		}
		ss.mu.Unlock()
	}
	return removed
}

func (s *store) len() int {
	n := 0
	for i := range s.tokens {
		ts := &s.tokens[i]
		ts.mu.Lock()
		n += len(ts.tokens)
		ts.mu.Unlock()
	}
	return n
}
