package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureConsume
	RefreshFailureReplay
	RefreshFailureSessionNotFound
	RefreshFailureIssue
	RefreshFailureRotate
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SessionID string
	UserID    string
	Session   *session.Session
	Pair      jwt.Pair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh  func(string) (*jwt.RefreshClaims, error)
	// ConsumeJTI blacklists jti until expiresAt and reports whether it was
	// already blacklisted.
	ConsumeJTI    func(context.Context, string, time.Time) (bool, error)
	// ReleaseJTI undoes ConsumeJTI after a backend failure so the client can
	// retry with the same token.
	ReleaseJTI    func(context.Context, string) error
	CheckSession  func(context.Context, string) (*session.Session, error)
	IssuePair     func(sess *session.Session, rotation uint32, parentJTI string) (jwt.Pair, error)
	RotateSession func(context.Context, string, string, session.Rotation) (*session.Session, error)

	Warn func(string, ...any)
}

// RunRefresh verifies a refresh token, consumes it and rotates the session
// onto a new pair.
//
// The signature is verified before the blacklist is touched, so a forged
// token can never be used to trigger revocation. A token that was already
// consumed, or that the session no longer has registered, is reported as a
// replay. When the session store or the signer fails after the jti was
// consumed, the jti is released so a retry is not mistaken for a replay.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}

	base := RefreshResult{SessionID: claims.SID, UserID: claims.UID}

	already, err := deps.ConsumeJTI(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		base.Failure, base.Err = RefreshFailureConsume, err
		return base
	}
	if already {
		base.Failure = RefreshFailureReplay
		return base
	}

	sess, err := deps.CheckSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			base.Failure, base.Err = RefreshFailureSessionNotFound, err
			return base
		}
		releaseJTI(ctx, claims.ID, deps)
		base.Failure, base.Err = RefreshFailureRotate, err
		return base
	}
	if sess.UserID != claims.UID {
		base.Failure = RefreshFailureInvalid
		return base
	}
	if sess.RefreshJTI != claims.ID {
		base.Failure, base.Session = RefreshFailureReplay, sess
		return base
	}

	pair, err := deps.IssuePair(sess, claims.Rotation+1, claims.ID)
	if err != nil {
		releaseJTI(ctx, claims.ID, deps)
		base.Failure, base.Err, base.Session = RefreshFailureIssue, err, sess
		return base
	}

	rotated, err := deps.RotateSession(ctx, claims.SID, claims.ID, session.Rotation{
		RefreshJTI:       pair.RefreshJTI,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		AccessJTI:        pair.AccessJTI,
		AccessExpiresAt:  pair.AccessExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshMismatch):
			base.Failure = RefreshFailureReplay
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			base.Failure = RefreshFailureSessionNotFound
		default:
			// The session still expects claims.ID, so releasing cannot
			// reopen a rotated token.
			releaseJTI(ctx, claims.ID, deps)
			base.Failure = RefreshFailureRotate
		}
		base.Err, base.Session = err, sess
		return base
	}

	return RefreshResult{
		SessionID: rotated.SessionID,
		UserID:    rotated.UserID,
		Session:   rotated,
		Pair:      pair,
	}
}

func releaseJTI(ctx context.Context, jti string, deps RefreshDeps) {
	if deps.ReleaseJTI == nil {
		return
	}
	if err := deps.ReleaseJTI(ctx, jti); err != nil {
		deps.Warn("goGuard: release refresh jti failed", "jti", jti, "error", err)
	}
}
