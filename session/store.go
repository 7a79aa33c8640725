package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown, revoked or evicted sessions.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned by the Manager for sessions past expiry or idle timeout.
	ErrExpired = errors.New("session expired")
	// ErrRefreshMismatch is returned by RotateRefresh when the presented
	// refresh jti is not the one currently bound to the session.
	ErrRefreshMismatch = errors.New("refresh token does not match session")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Store persists sessions and a per-user index.
//
// Create inserts sess and, while the user already holds limit or more
// sessions, evicts the least recently active ones. Eviction and insert are
// atomic per user. A non-positive limit disables the cap.
//
// RotateRefresh is a compare-and-swap on the bound refresh jti.
type Store interface {
	Create(ctx context.Context, sess *Session, limit int) (evicted []*Session, err error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Touch(ctx context.Context, sessionID string, lastAccess, expiresAt time.Time) (*Session, error)
	RotateRefresh(ctx context.Context, sessionID, expectedJTI string, next Rotation) (*Session, error)
	Delete(ctx context.Context, sessionID string) (*Session, error)
	DeleteAllForUser(ctx context.Context, userID, exceptSessionID string) ([]*Session, error)
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
}

// Sweeper is implemented by stores that need a background pass to drop
// expired sessions. Redis expires keys itself and does not implement it.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time, idle time.Duration) int
}
