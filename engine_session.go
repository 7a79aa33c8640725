package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// Logout blacklists accessToken and ends its session, blacklisting the
// session's refresh token too. Logging out of an already ended session
// succeeds.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := flows.RunLogoutByAccessToken(ctx, accessToken, e.flows.Logout)
	if res.Err != nil && res.SessionID == "" {
		if errors.Is(res.Err, jwt.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if res.Err != nil {
		e.warn("goGuard: logout failed", "session_id", res.SessionID, "error", res.Err)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}

	e.csrf.RevokeSession(res.SessionID)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, SeverityInfo, true, res.UserID, res.SessionID, nil, nil)
	return nil
}

// LogoutSession ends one session by id, for example from a device list.
func (e *Engine) LogoutSession(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if !internal.ValidSessionID(sessionID) {
		return ErrSessionNotFound
	}

	sess, err := flows.RunLogoutSession(ctx, sessionID, e.flows.Logout)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.csrf.RevokeSession(sess.SessionID)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, SeverityInfo, true, sess.UserID, sess.SessionID, nil, nil)
	return nil
}

// RevokeAllSessions ends every session of userID and blacklists their
// tokens. It returns the number of sessions ended.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.revokeAll(ctx, userID, "", "revoke_all")
}

func (e *Engine) revokeAll(ctx context.Context, userID, exceptSessionID, reason string) (int, error) {
	revoked, err := flows.RunLogoutAll(ctx, userID, exceptSessionID, e.flows.Logout)
	for _, sess := range revoked {
		e.csrf.RevokeSession(sess.SessionID)
	}
	if err != nil {
		e.warn("goGuard: revoke sessions failed", "user_id", userID, "error", err)
		return len(revoked), fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, SeverityMedium, true, userID, exceptSessionID, nil, func() map[string]string {
		return map[string]string{
			"reason":  reason,
			"revoked": strconv.Itoa(len(revoked)),
		}
	})
	return len(revoked), nil
}
