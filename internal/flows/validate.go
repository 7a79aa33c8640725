package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalid
	ValidateFailureExpired
	ValidateFailureRevoked
	ValidateFailureBackend
	ValidateFailureSessionNotFound
)

// ValidateResult returns either claims/session success payload or classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Session *session.Session
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	IsRevoked    func(context.Context, string) (bool, error)
	// TouchSession loads the session, requires it active and records the
	// access.
	TouchSession func(context.Context, string) (*session.Session, error)
}

// RunValidate executes access-token validation: signature and registered
// claims, then the blacklist, then the owning session.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	revoked, err := deps.IsRevoked(ctx, claims.ID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureBackend, Err: err, Claims: claims}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked, Claims: claims}
	}

	sess, err := deps.TouchSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureBackend, Err: err, Claims: claims}
	}
	if sess.UserID != claims.UID {
		return ValidateResult{Failure: ValidateFailureInvalid, Claims: claims}
	}

	return ValidateResult{Claims: claims, Session: sess}
}
