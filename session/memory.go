package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const stripeCount = 64

type sessionShard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

type userStripe struct {
	mu    sync.Mutex
	index map[string]map[string]struct{} // userID -> session ids
}

// MemoryStore is a process-local Store. Sessions live in shards keyed by
// session id; the per-user index lives in stripes keyed by user id. Lock order
// is always user stripe, then session shard.
type MemoryStore struct {
	shards  [stripeCount]sessionShard
	stripes [stripeCount]userStripe
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*Session)
		s.stripes[i].index = make(map[string]map[string]struct{})
	}
	return s
}

func slot(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripeCount
}

func (s *MemoryStore) shard(sessionID string) *sessionShard { return &s.shards[slot(sessionID)] }
func (s *MemoryStore) stripe(userID string) *userStripe    { return &s.stripes[slot(userID)] }

func (s *MemoryStore) Create(_ context.Context, sess *Session, limit int) ([]*Session, error) {
	stored := sess.Clone()
	stored.Active = true

	st := s.stripe(stored.UserID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ids := st.index[stored.UserID]
	if ids == nil {
		ids = make(map[string]struct{})
		st.index[stored.UserID] = ids
	}

	live := make([]*Session, 0, len(ids))
	for id := range ids {
		if cur := s.peek(id); cur != nil {
			live = append(live, cur)
		} else {
			delete(ids, id)
		}
	}

	var evicted []*Session
	for limit > 0 && len(live) >= limit {
		oldest := 0
		for i := 1; i < len(live); i++ {
			if live[i].LastAccessAt.Before(live[oldest].LastAccessAt) {
				oldest = i
			}
		}
		victim := live[oldest]
		live = append(live[:oldest], live[oldest+1:]...)

		if removed := s.remove(victim.SessionID); removed != nil {
			removed.Active = false
			evicted = append(evicted, removed)
		}
		delete(ids, victim.SessionID)
	}

	sh := s.shard(stored.SessionID)
	sh.mu.Lock()
	sh.sessions[stored.SessionID] = stored
	sh.mu.Unlock()
	ids[stored.SessionID] = struct{}{}

	return evicted, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	if cur := s.peek(sessionID); cur != nil {
		return cur, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Touch(_ context.Context, sessionID string, lastAccess, expiresAt time.Time) (*Session, error) {
	sh := s.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if lastAccess.After(cur.LastAccessAt) {
		cur.LastAccessAt = lastAccess
	}
	if expiresAt.After(cur.ExpiresAt) {
		cur.ExpiresAt = expiresAt
	}
	return cur.Clone(), nil
}

func (s *MemoryStore) RotateRefresh(_ context.Context, sessionID, expectedJTI string, next Rotation) (*Session, error) {
	sh := s.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.RefreshJTI != expectedJTI {
		return nil, ErrRefreshMismatch
	}
	next.apply(cur)
	return cur.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) (*Session, error) {
	removed := s.deleteWhere(sessionID, nil)
	if removed == nil {
		return nil, ErrNotFound
	}
	return removed, nil
}

// deleteWhere removes sessionID when keep is nil or returns false for the
// current record. keep runs under the shard lock.
func (s *MemoryStore) deleteWhere(sessionID string, keep func(*Session) bool) *Session {
	cur := s.peek(sessionID)
	if cur == nil {
		return nil
	}

	st := s.stripe(cur.UserID)
	st.mu.Lock()
	defer st.mu.Unlock()

	sh := s.shard(sessionID)
	sh.mu.Lock()
	removed, ok := sh.sessions[sessionID]
	if !ok || (keep != nil && keep(removed)) {
		sh.mu.Unlock()
		return nil
	}
	delete(sh.sessions, sessionID)
	sh.mu.Unlock()

	if ids := st.index[removed.UserID]; ids != nil {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(st.index, removed.UserID)
		}
	}
	removed.Active = false
	return removed
}

func (s *MemoryStore) DeleteAllForUser(_ context.Context, userID, exceptSessionID string) ([]*Session, error) {
	st := s.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ids := st.index[userID]
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if id == exceptSessionID {
			continue
		}
		if removed := s.remove(id); removed != nil {
			removed.Active = false
			out = append(out, removed)
		}
		delete(ids, id)
	}
	if len(ids) == 0 {
		delete(st.index, userID)
	}
	return out, nil
}

func (s *MemoryStore) ListForUser(_ context.Context, userID string) ([]*Session, error) {
	st := s.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ids := st.index[userID]
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if cur := s.peek(id); cur != nil {
			out = append(out, cur)
		}
	}
	return out, nil
}

// SweepExpired deletes sessions past expiry or idle longer than idle.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time, idle time.Duration) int {
	var stale []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.StateAt(now, idle) != StateActive {
				stale = append(stale, id)
			}
		}
		sh.mu.Unlock()
	}

	removed := 0
	for _, id := range stale {
		fresh := func(sess *Session) bool { return sess.StateAt(now, idle) == StateActive }
		if s.deleteWhere(id, fresh) != nil {
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

func (s *MemoryStore) peek(sessionID string) *Session {
	sh := s.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sessions[sessionID].Clone()
}

func (s *MemoryStore) remove(sessionID string) *Session {
	sh := s.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(sh.sessions, sessionID)
	return cur
}
