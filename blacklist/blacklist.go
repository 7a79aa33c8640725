// Package blacklist records revoked and consumed token identifiers (jti)
// until the token would have expired anyway.
package blacklist

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("blacklist backend unavailable")

// Blacklist is a jti set with per-entry expiry.
type Blacklist interface {
	// Add records jti until expiresAt.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	// Contains reports whether jti is currently blacklisted.
	Contains(ctx context.Context, jti string) (bool, error)
	// Consume atomically adds jti and reports whether it was already present.
	// Exactly one of any number of concurrent callers sees false.
	Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	// Release undoes a Consume whose refresh then failed on a backend
	// error, so the token can be retried.
	Release(ctx context.Context, jti string) error
}

// minRetention keeps entries for already-expired tokens around briefly so
// Consume stays one-shot even when the token expired in flight.
const minRetention = time.Second
