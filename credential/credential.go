// Package credential defines the user credential record and the store the
// gateway reads it from. Persistence belongs to the application; the package
// ships an in-memory [MemoryStore] for tests and single-process deployments.
package credential

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by lookups and mutations on an unknown user.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicateEmail is returned by Save and Create when another user
	// already owns the email.
	ErrDuplicateEmail = errors.New("credential email already registered")
	// ErrDuplicateUser is returned by Create for a user ID already stored.
	ErrDuplicateUser = errors.New("credential user already registered")
	// ErrStaleHash is returned by SwapPasswordHash when the stored hash is no
	// longer the one the caller read.
	ErrStaleHash = errors.New("credential password hash changed")
	// ErrInvalidCredential is returned by Save for records missing required fields.
	ErrInvalidCredential = errors.New("invalid credential record")
)

// Credential is the authentication record of one user.
type Credential struct {
	UserID          string
	Email           string
	Role            string
	TeamID          string
	PasswordHash    string
	PasswordHistory []string
	LastChangedAt   time.Time
	FailedAttempts  int
	LockedUntil     time.Time
	Active          bool
}

// LockedAt reports whether the account is locked at now.
func (c *Credential) LockedAt(now time.Time) bool {
	return c != nil && !c.LockedUntil.IsZero() && now.Before(c.LockedUntil)
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.PasswordHistory = append([]string(nil), c.PasswordHistory...)
	return &out
}

// Store is the credential backend consumed by the engine.
//
// Get returns (nil, nil) when no user has the email; an error is reserved for
// backend failures. RecordFailedAttempt returns the updated counter.
//
// Create must decide uniqueness of both the user ID and the email
// atomically with the insert. SwapPasswordHash replaces only the hash, and
// only while the stored hash still equals oldHash.
type Store interface {
	Get(ctx context.Context, email string) (*Credential, error)
	GetByID(ctx context.Context, userID string) (*Credential, error)
	Create(ctx context.Context, cred *Credential) error
	Save(ctx context.Context, cred *Credential) error
	SwapPasswordHash(ctx context.Context, userID, oldHash, newHash string) error
	RecordFailedAttempt(ctx context.Context, userID string) (int, error)
	ResetFailedAttempts(ctx context.Context, userID string) error
	Lock(ctx context.Context, userID string, until time.Time) error
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
