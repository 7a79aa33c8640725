package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/rbac"
)

// Authenticate checks email and password and opens a session.
//
// The login endpoint rate limit is applied first, keyed on the client IP in
// ctx (see WithClientIP). Unknown email, wrong password and inactive account
// all return ErrInvalidCredentials. A locked account returns ErrAccountLocked
// even when the password is correct. The attempt that reaches the failed
// attempt limit locks the account and already returns ErrAccountLocked.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = credential.NormalizeEmail(email)
	if err := e.validate.Struct(LoginRequest{Email: email, Password: password}); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityLow, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "malformed_input"}
		})
		return nil, ErrInvalidCredentials
	}

	if err := e.checkEndpoint(ctx, e.config.RateLimit.LoginPath, ""); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, SeverityMedium, false, "", "", err, func() map[string]string {
				return map[string]string{"identifier": email}
			})
		}
		return nil, err
	}

	res := flows.RunLogin(ctx, email, password, e.flows.Login)
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginFailure(ctx, email, res)
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	if res.Upgraded {
		e.metricInc(MetricPasswordHashUpgraded)
	}

	evicted := make([]string, 0, len(res.Evicted))
	for _, old := range res.Evicted {
		e.retireSession(ctx, old)
		evicted = append(evicted, old.SessionID)
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, auditEventSessionEvicted, SeverityLow, true, old.UserID, old.SessionID, nil, func() map[string]string {
			return map[string]string{"replaced_by": res.Session.SessionID}
		})
	}
	if len(res.Session.RiskFlags) > 0 {
		e.metricInc(MetricSessionRiskFlagged)
		e.emitAudit(ctx, auditEventSessionRiskFlagged, SeverityMedium, true, res.UserID, res.Session.SessionID, nil, func() map[string]string {
			return map[string]string{"flags": strings.Join(res.Session.RiskFlags, ",")}
		})
	}
	e.emitAudit(ctx, auditEventLoginSuccess, SeverityInfo, true, res.UserID, res.Session.SessionID, nil, func() map[string]string {
		return map[string]string{"identifier": email}
	})

	return &LoginResult{
		Tokens:  res.Pair,
		Session: res.Session,
		Evicted: evicted,
	}, nil
}

func (e *Engine) loginFailure(ctx context.Context, email string, res flows.LoginResult) error {
	var (
		out      error
		reason   string
		severity = SeverityLow
	)
	switch res.Failure {
	case flows.LoginFailureUnknownUser:
		out, reason = ErrInvalidCredentials, "unknown_user"
	case flows.LoginFailureInactive:
		out, reason = ErrInvalidCredentials, "inactive"
	case flows.LoginFailurePassword:
		out, reason = ErrInvalidCredentials, "wrong_password"
	case flows.LoginFailureLocked:
		out, reason, severity = ErrAccountLocked, "locked", SeverityMedium
	case flows.LoginFailureVerify:
		// A malformed stored hash is reported like a wrong password.
		out, reason = ErrInvalidCredentials, "verify_failed"
		e.warn("goGuard: password verification failed", "user_id", res.UserID, "error", res.Err)
	default:
		out, reason = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err), "backend"
		e.logger.Sugar().Errorw("goGuard: login failed", "user_id", res.UserID, "error", res.Err)
	}

	e.metricInc(MetricLoginFailure)
	// A lock set by this very attempt is reported once as account_locked.
	if res.NewlyLocked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, SeverityHigh, false, res.UserID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier":   email,
				"attempts":     strconv.Itoa(res.Attempts),
				"locked_until": res.LockedUntil.UTC().Format(time.RFC3339),
			}
		})
	}
	e.emitAudit(ctx, auditEventLoginFailure, severity, false, res.UserID, "", out, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"reason":     reason,
		}
	})
	return out
}

// Verify checks an access token and its session and records the access on
// the session. Signature, issuer, audience, expiry and required claims are
// checked before the blacklist so a forged token never reaches a store.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := flows.RunValidate(ctx, accessToken, e.flows.Validate)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureExpired:
		return nil, ErrTokenExpired
	case flows.ValidateFailureInvalid, flows.ValidateFailureRevoked:
		return nil, ErrTokenInvalid
	case flows.ValidateFailureSessionNotFound:
		return nil, ErrSessionNotFound
	default:
		e.warn("goGuard: token validation backend failure", "error", res.Err)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}

	c := res.Claims
	out := &AuthResult{
		UserID:      c.UID,
		Role:        c.Role,
		TeamID:      c.Team,
		SessionID:   c.SID,
		TokenID:     c.ID,
		Permissions: c.Perms,
		Session:     res.Session,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

// Authorize verifies accessToken and evaluates perm on resource for the
// token's role. The caller's identity facts in actx (UserID, TeamID,
// SessionActive) are taken from the token and session; the caller supplies
// the target facts. A denial returns *PermissionDeniedError.
func (e *Engine) Authorize(ctx context.Context, accessToken string, perm rbac.Permission, resource rbac.Resource, actx rbac.Context) (*AuthResult, error) {
	auth, err := e.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return auth, e.Permit(ctx, auth, perm, resource, actx)
}

// Permit evaluates perm on resource for an already verified caller. It is
// Authorize without the token check, for callers holding an AuthResult.
//
// Caller facts (UserID, TeamID, SessionActive) always come from auth. When
// the deciding rule needs coach approval, it is looked up in the engine's
// Approvals for the caller and actx.TargetTeamID. A true ApprovedByCoach
// passed in actx is honoured as is, so set it only from server-side state.
func (e *Engine) Permit(ctx context.Context, auth *AuthResult, perm rbac.Permission, resource rbac.Resource, actx rbac.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if auth == nil {
		return ErrTokenInvalid
	}

	actx.UserID = auth.UserID
	actx.TeamID = auth.TeamID
	actx.SessionActive = auth.Session != nil && auth.Session.Active
	if actx.Now.IsZero() {
		actx.Now = e.now()
	}
	if !actx.ApprovedByCoach && e.policy.Requires(auth.Role, perm, resource, rbac.ApprovedByCoach) {
		ok, err := e.approvals.Approved(ctx, auth.UserID, actx.TargetTeamID)
		if err != nil {
			e.warn("goGuard: approval lookup failed", "user_id", auth.UserID, "error", err)
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		actx.ApprovedByCoach = ok
	}

	decision := e.policy.HasPermission(auth.Role, perm, resource, actx)
	if decision.Granted {
		e.metricInc(MetricAuthorizeGranted)
		return nil
	}

	e.metricInc(MetricAuthorizeDenied)
	denied := &PermissionDeniedError{Reason: string(decision.Reason)}
	e.emitAudit(ctx, auditEventPermissionDenied, SeverityMedium, false, auth.UserID, auth.SessionID, denied, func() map[string]string {
		md := map[string]string{
			"role":       auth.Role,
			"permission": string(perm),
			"resource":   string(resource),
			"reason":     string(decision.Reason),
		}
		if decision.FailedCondition != "" {
			md["condition"] = string(decision.FailedCondition)
		}
		return md
	})
	return denied
}

// Refresh exchanges a refresh token for a new pair and rotates the session
// onto it. Each refresh token works once: presenting a consumed token again
// revokes every session of its user and returns ErrTokenReplayed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if err := e.checkEndpoint(ctx, e.config.RateLimit.RefreshPath, ""); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
		}
		return TokenPair{}, err
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, SeverityInfo, true, res.UserID, res.SessionID, nil, func() map[string]string {
			return map[string]string{"rotation": strconv.FormatUint(uint64(res.Session.Rotation), 10)}
		})
		return res.Pair, nil
	case flows.RefreshFailureReplay:
		return TokenPair{}, e.handleReplay(ctx, res)
	}

	e.metricInc(MetricRefreshFailure)
	var out error
	switch res.Failure {
	case flows.RefreshFailureExpired:
		out = ErrTokenExpired
	case flows.RefreshFailureInvalid:
		out = ErrTokenInvalid
	case flows.RefreshFailureSessionNotFound:
		out = ErrSessionNotFound
	default:
		out = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
		e.logger.Sugar().Errorw("goGuard: refresh failed", "session_id", res.SessionID, "error", res.Err)
	}
	e.emitAudit(ctx, auditEventRefreshInvalid, SeverityLow, false, res.UserID, res.SessionID, out, nil)
	return TokenPair{}, out
}

// handleReplay is the compromise response: every session of the user ends
// and their tokens are blacklisted.
func (e *Engine) handleReplay(ctx context.Context, res flows.RefreshResult) error {
	e.metricInc(MetricReplayDetected)
	e.metricInc(MetricRefreshFailure)

	revoked, err := flows.RunLogoutAll(ctx, res.UserID, "", e.flows.Logout)
	if err != nil {
		e.logger.Sugar().Errorw("goGuard: revoke after replay failed", "user_id", res.UserID, "error", err)
	}
	for _, sess := range revoked {
		e.csrf.RevokeSession(sess.SessionID)
	}

	e.emitAudit(ctx, auditEventRefreshReplay, SeverityCritical, false, res.UserID, res.SessionID, ErrTokenReplayed, func() map[string]string {
		return map[string]string{"revoked_sessions": strconv.Itoa(len(revoked))}
	})
	return ErrTokenReplayed
}

// Sessions lists the user's active sessions, most recently active first.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	list, err := e.sessions.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return list, nil
}
