package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess      func(string) (*jwt.AccessClaims, error)
	Blacklist        func(context.Context, string, time.Time) error
	RevokeSession    func(context.Context, string) (*session.Session, error)
	RevokeAllForUser func(context.Context, string, string) ([]*session.Session, error)
}

// LogoutResult reports what a logout revoked.
type LogoutResult struct {
	SessionID string
	UserID    string
	Session   *session.Session
	Err       error
}

// RunLogoutByAccessToken blacklists the presented access token and ends its
// session, blacklisting the session's live refresh token as well. An
// already-ended session is not an error: the token is still blacklisted.
func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutResult{Err: err}
	}

	out := LogoutResult{SessionID: claims.SID, UserID: claims.UID}
	if err := deps.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		out.Err = err
		return out
	}

	sess, err := deps.RevokeSession(ctx, claims.SID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			out.Err = err
		}
		return out
	}
	out.Session = sess
	out.Err = blacklistSession(ctx, sess, deps.Blacklist)
	return out
}

// RunLogoutSession ends one session by id and blacklists its bound tokens.
func RunLogoutSession(ctx context.Context, sessionID string, deps LogoutDeps) (*session.Session, error) {
	sess, err := deps.RevokeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess, blacklistSession(ctx, sess, deps.Blacklist)
}

// RunLogoutAll ends every session of userID except exceptSessionID and
// blacklists their bound tokens. It keeps going after a blacklist failure
// and returns the first one.
func RunLogoutAll(ctx context.Context, userID, exceptSessionID string, deps LogoutDeps) ([]*session.Session, error) {
	revoked, err := deps.RevokeAllForUser(ctx, userID, exceptSessionID)
	if err != nil {
		return nil, err
	}
	var first error
	for _, sess := range revoked {
		if err := blacklistSession(ctx, sess, deps.Blacklist); err != nil && first == nil {
			first = err
		}
	}
	return revoked, first
}

func blacklistSession(ctx context.Context, sess *session.Session, add func(context.Context, string, time.Time) error) error {
	if sess.AccessJTI != "" {
		if err := add(ctx, sess.AccessJTI, sess.AccessExpiresAt); err != nil {
			return err
		}
	}
	if sess.RefreshJTI != "" {
		if err := add(ctx, sess.RefreshJTI, sess.RefreshExpiresAt); err != nil {
			return err
		}
	}
	return nil
}
