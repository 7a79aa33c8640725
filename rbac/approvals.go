package rbac

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Approvals records which users a coach has cleared to see a team's data.
// It is the only source the engine consults for the ApprovedByCoach
// condition on behalf of a caller.
type Approvals interface {
	Approved(ctx context.Context, userID, teamID string) (bool, error)
	Grant(ctx context.Context, userID, teamID string) error
	Revoke(ctx context.Context, userID, teamID string) error
}

type approvalKey struct {
	user string
	team string
}

// MemoryApprovals keeps approvals in process memory.
type MemoryApprovals struct {
	mu  sync.RWMutex
	set map[approvalKey]struct{}
}

// NewMemoryApprovals returns an empty store.
func NewMemoryApprovals() *MemoryApprovals {
	return &MemoryApprovals{set: make(map[approvalKey]struct{})}
}

func (m *MemoryApprovals) Approved(_ context.Context, userID, teamID string) (bool, error) {
	if userID == "" || teamID == "" {
		return false, nil
	}
	m.mu.RLock()
	_, ok := m.set[approvalKey{userID, teamID}]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryApprovals) Grant(_ context.Context, userID, teamID string) error {
	m.mu.Lock()
	m.set[approvalKey{userID, teamID}] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryApprovals) Revoke(_ context.Context, userID, teamID string) error {
	m.mu.Lock()
	delete(m.set, approvalKey{userID, teamID})
	m.mu.Unlock()
	return nil
}

// RedisApprovals shares approvals across gateway instances. Each team is a
// set "<prefix>:approvals:<teamID>" of approved user IDs.
type RedisApprovals struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisApprovals returns a Redis-backed approval store.
func NewRedisApprovals(client redis.UniversalClient, prefix string) *RedisApprovals {
	if prefix == "" {
		prefix = "goguard"
	}
	return &RedisApprovals{client: client, prefix: prefix}
}

func (r *RedisApprovals) key(teamID string) string {
	return r.prefix + ":approvals:" + teamID
}

func (r *RedisApprovals) Approved(ctx context.Context, userID, teamID string) (bool, error) {
	if userID == "" || teamID == "" {
		return false, nil
	}
	return r.client.SIsMember(ctx, r.key(teamID), userID).Result()
}

func (r *RedisApprovals) Grant(ctx context.Context, userID, teamID string) error {
	return r.client.SAdd(ctx, r.key(teamID), userID).Err()
}

func (r *RedisApprovals) Revoke(ctx context.Context, userID, teamID string) error {
	return r.client.SRem(ctx, r.key(teamID), userID).Err()
}
