package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLookup
	LoginFailureUnknownUser
	LoginFailureInactive
	LoginFailureLocked
	LoginFailurePassword
	LoginFailureVerify
	LoginFailureSession
)

// LoginResult carries either the opened session or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Role    string
	// Attempts is the failed-attempt counter after a wrong password.
	Attempts    int
	LockedUntil time.Time
	// NewlyLocked is set when this attempt triggered the lockout.
	NewlyLocked bool
	Upgraded    bool
	Session     *session.Session
	Evicted     []*session.Session
	Pair        jwt.Pair
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	UpgradeOnLogin    bool
	Now               func() time.Time

	GetCredential       func(context.Context, string) (*credential.Credential, error)
	RecordFailedAttempt func(context.Context, string) (int, error)
	ResetFailedAttempts func(context.Context, string) error
	Lock                func(context.Context, string, time.Time) error

	VerifyPassword       func(context.Context, string, string) (bool, error)
	VerifyDummy          func(context.Context, string) error
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(context.Context, string) (string, error)
	// SwapPasswordHash replaces the hash only if it still equals the old one.
	SwapPasswordHash     func(ctx context.Context, userID, oldHash, newHash string) error

	// OpenSession creates the session and its first token pair.
	OpenSession func(context.Context, *credential.Credential) (*session.Session, []*session.Session, jwt.Pair, error)

	Warn func(string, ...any)
}

// RunLogin checks the password for email and opens a session on success.
//
// Unknown and inactive accounts burn one dummy verification so their timing
// matches a wrong password. A locked account is reported before the password
// is checked, so a correct password during lockout still fails as locked.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	cred, err := deps.GetCredential(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}
	if cred == nil {
		if err := deps.VerifyDummy(ctx, password); err != nil {
			return LoginResult{Failure: LoginFailureVerify, Err: err}
		}
		return LoginResult{Failure: LoginFailureUnknownUser}
	}
	if !cred.Active {
		if err := deps.VerifyDummy(ctx, password); err != nil {
			return LoginResult{Failure: LoginFailureVerify, Err: err, UserID: cred.UserID}
		}
		return LoginResult{Failure: LoginFailureInactive, UserID: cred.UserID}
	}

	now := deps.Now()
	if cred.LockedAt(now) {
		return LoginResult{
			Failure:     LoginFailureLocked,
			UserID:      cred.UserID,
			Attempts:    cred.FailedAttempts,
			LockedUntil: cred.LockedUntil,
		}
	}

	// An expired lockout starts a fresh run of attempts.
	if !cred.LockedUntil.IsZero() {
		if err := deps.ResetFailedAttempts(ctx, cred.UserID); err != nil {
			deps.Warn("goGuard: reset failed attempts failed", "user_id", cred.UserID, "error", err)
		}
		cred.FailedAttempts = 0
		cred.LockedUntil = time.Time{}
	}

	ok, err := deps.VerifyPassword(ctx, password, cred.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureVerify, Err: err, UserID: cred.UserID}
	}
	if !ok {
		return recordFailure(ctx, cred, now, deps)
	}

	if cred.FailedAttempts > 0 {
		if err := deps.ResetFailedAttempts(ctx, cred.UserID); err != nil {
			deps.Warn("goGuard: reset failed attempts failed", "user_id", cred.UserID, "error", err)
		}
	}

	upgraded := false
	if deps.UpgradeOnLogin && deps.PasswordNeedsUpgrade != nil {
		if needs, err := deps.PasswordNeedsUpgrade(cred.PasswordHash); err == nil && needs {
			upgraded = upgradeHash(ctx, cred, password, deps)
		}
	}

	sess, evicted, pair, err := deps.OpenSession(ctx, cred)
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, UserID: cred.UserID, Role: cred.Role}
	}

	return LoginResult{
		UserID:   cred.UserID,
		Role:     cred.Role,
		Upgraded: upgraded,
		Session:  sess,
		Evicted:  evicted,
		Pair:     pair,
	}
}

func recordFailure(ctx context.Context, cred *credential.Credential, now time.Time, deps LoginDeps) LoginResult {
	attempts, err := deps.RecordFailedAttempt(ctx, cred.UserID)
	if err != nil {
		deps.Warn("goGuard: record failed attempt failed", "user_id", cred.UserID, "error", err)
		return LoginResult{Failure: LoginFailurePassword, UserID: cred.UserID}
	}

	if deps.MaxFailedAttempts > 0 && attempts >= deps.MaxFailedAttempts {
		until := now.Add(deps.LockoutDuration)
		if err := deps.Lock(ctx, cred.UserID, until); err != nil {
			deps.Warn("goGuard: lock account failed", "user_id", cred.UserID, "error", err)
			return LoginResult{Failure: LoginFailurePassword, UserID: cred.UserID, Attempts: attempts}
		}
		return LoginResult{
			Failure:     LoginFailureLocked,
			UserID:      cred.UserID,
			Attempts:    attempts,
			LockedUntil: until,
			NewlyLocked: true,
		}
	}

	return LoginResult{Failure: LoginFailurePassword, UserID: cred.UserID, Attempts: attempts}
}

// upgradeHash rehashes with the current parameters. Failures are logged and
// leave the stored hash in place; they never fail the login. A hash changed
// since cred was read is not overwritten.
func upgradeHash(ctx context.Context, cred *credential.Credential, password string, deps LoginDeps) bool {
	if deps.HashPassword == nil || deps.SwapPasswordHash == nil {
		return false
	}
	hash, err := deps.HashPassword(ctx, password)
	if err != nil {
		deps.Warn("goGuard: password rehash failed", "user_id", cred.UserID, "error", err)
		return false
	}
	if err := deps.SwapPasswordHash(ctx, cred.UserID, cred.PasswordHash, hash); err != nil {
		if errors.Is(err, credential.ErrStaleHash) {
			deps.Warn("goGuard: password changed during rehash, keeping new hash", "user_id", cred.UserID)
			return false
		}
		deps.Warn("goGuard: password rehash save failed", "user_id", cred.UserID, "error", err)
		return false
	}
	return true
}
