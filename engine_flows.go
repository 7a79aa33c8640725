package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/blacklist"
	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/sweep"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			MaxFailedAttempts: e.config.Lockout.MaxFailedAttempts,
			LockoutDuration:   e.config.Lockout.Duration,
			UpgradeOnLogin:    e.config.Password.UpgradeOnLogin,
			Now:               e.now,

			GetCredential:       e.credentials.Get,
			RecordFailedAttempt: e.credentials.RecordFailedAttempt,
			ResetFailedAttempts: e.credentials.ResetFailedAttempts,
			Lock:                e.credentials.Lock,

			VerifyPassword:       e.passwords.Verify,
			VerifyDummy:          e.passwords.VerifyDummy,
			PasswordNeedsUpgrade: e.passwords.NeedsUpgrade,
			HashPassword:         e.passwords.Hash,
			SwapPasswordHash:     e.credentials.SwapPasswordHash,

			OpenSession: e.openSession,
			Warn:        e.warn,
		},
		Refresh: flows.RefreshDeps{
			ParseRefresh:  e.tokens.ParseRefresh,
			ConsumeJTI:    e.blacklist.Consume,
			ReleaseJTI:    e.blacklist.Release,
			CheckSession:  e.sessions.Check,
			IssuePair:     e.issueForSession,
			RotateSession: e.sessions.Rotate,
			Warn:          e.warn,
		},
		Validate: flows.ValidateDeps{
			ParseAccess:  e.tokens.ParseAccess,
			IsRevoked:    e.blacklist.Contains,
			TouchSession: e.sessions.Validate,
		},
		Logout: flows.LogoutDeps{
			ParseAccess:      e.tokens.ParseAccess,
			Blacklist:        e.blacklist.Add,
			RevokeSession:    e.sessions.Revoke,
			RevokeAllForUser: e.sessions.RevokeAll,
		},
		ChangePassword: flows.ChangePasswordDeps{
			HistorySize:       e.config.Password.HistorySize,
			Now:               e.now,
			GetCredentialByID: e.credentials.GetByID,
			SaveCredential:    e.credentials.Save,
			VerifyPassword:    e.passwords.Verify,
			HashPassword:      e.passwords.Hash,
		},
	}
}

func (e *Engine) buildJanitor() *sweep.Janitor {
	tasks := []sweep.Task{
		{
			Name:     "sessions",
			Interval: e.config.Sweep.Sessions,
			Run: func(ctx context.Context, _ time.Time) int {
				return e.sessions.Sweep(ctx)
			},
		},
		{
			Name:     "csrf",
			Interval: e.config.Sweep.CSRF,
			Run: func(_ context.Context, now time.Time) int {
				return e.csrf.Sweep(now)
			},
		},
	}
	// Redis expires blacklist keys by TTL.
	if mem, ok := e.blacklist.(*blacklist.Memory); ok {
		tasks = append(tasks, sweep.Task{
			Name:     "blacklist",
			Interval: e.config.Sweep.Blacklist,
			Run: func(_ context.Context, now time.Time) int {
				return mem.Sweep(now)
			},
		})
	}
	if e.limiter != nil {
		tasks = append(tasks, sweep.Task{
			Name:     "ratelimit",
			Interval: e.config.Sweep.RateLimit,
			Run: func(_ context.Context, now time.Time) int {
				stats := e.limiter.Sweep(now)
				return stats.Buckets + stats.Observed + stats.Threats
			},
		})
	}
	return sweep.New(tasks, e.now, e.logger.Named("sweep"))
}

func (e *Engine) subject(userID, role, teamID string) jwt.Subject {
	return jwt.Subject{
		UserID:      userID,
		Role:        role,
		TeamID:      teamID,
		Permissions: e.policy.PermissionsFor(role),
	}
}

// openSession issues the first token pair and stores the session bound to
// it. The pair is issued first so the session never exists without a
// registered refresh jti.
func (e *Engine) openSession(ctx context.Context, cred *credential.Credential) (*session.Session, []*session.Session, jwt.Pair, error) {
	sid, err := e.sessions.NewID()
	if err != nil {
		return nil, nil, jwt.Pair{}, err
	}
	pair, err := e.tokens.Issue(e.subject(cred.UserID, cred.Role, cred.TeamID), sid, 0, "")
	if err != nil {
		return nil, nil, jwt.Pair{}, err
	}

	sess, evicted, err := e.sessions.Create(ctx, session.Params{
		SessionID:        sid,
		UserID:           cred.UserID,
		Role:             cred.Role,
		TeamID:           cred.TeamID,
		IP:               ClientIPFromContext(ctx),
		UserAgent:        userAgentFromContext(ctx),
		AcceptLanguage:   acceptLanguageFromContext(ctx),
		RefreshJTI:       pair.RefreshJTI,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		AccessJTI:        pair.AccessJTI,
		AccessExpiresAt:  pair.AccessExpiresAt,
	})
	if err != nil {
		return nil, nil, jwt.Pair{}, err
	}
	return sess, evicted, pair, nil
}

func (e *Engine) issueForSession(sess *session.Session, rotation uint32, parentJTI string) (jwt.Pair, error) {
	return e.tokens.Issue(e.subject(sess.UserID, sess.Role, sess.TeamID), sess.SessionID, rotation, parentJTI)
}

// retireSession blacklists the tokens bound to an ended session and drops
// its CSRF tokens.
func (e *Engine) retireSession(ctx context.Context, sess *session.Session) {
	if sess.AccessJTI != "" {
		if err := e.blacklist.Add(ctx, sess.AccessJTI, sess.AccessExpiresAt); err != nil {
			e.warn("goGuard: blacklist access token failed", "session_id", sess.SessionID, "error", err)
		}
	}
	if sess.RefreshJTI != "" {
		if err := e.blacklist.Add(ctx, sess.RefreshJTI, sess.RefreshExpiresAt); err != nil {
			e.warn("goGuard: blacklist refresh token failed", "session_id", sess.SessionID, "error", err)
		}
	}
	e.csrf.RevokeSession(sess.SessionID)
}
