package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/credential"
)

// ChangePasswordFailureKind classifies password change failures.
type ChangePasswordFailureKind int

const (
	ChangePasswordFailureNone ChangePasswordFailureKind = iota
	ChangePasswordFailureLookup
	ChangePasswordFailureNotFound
	ChangePasswordFailureInvalidOld
	ChangePasswordFailureReuse
	ChangePasswordFailureHash
	ChangePasswordFailureSave
)

// ChangePasswordResult carries the updated credential or failure metadata.
type ChangePasswordResult struct {
	Failure    ChangePasswordFailureKind
	Err        error
	Credential *credential.Credential
}

// ChangePasswordDeps captures password change dependencies.
type ChangePasswordDeps struct {
	HistorySize int
	Now         func() time.Time

	GetCredentialByID func(context.Context, string) (*credential.Credential, error)
	SaveCredential    func(context.Context, *credential.Credential) error
	VerifyPassword    func(context.Context, string, string) (bool, error)
	HashPassword      func(context.Context, string) (string, error)
}

// RunChangePassword replaces the user's password after checking the old one.
// The new password may not match the current hash or any of the last
// HistorySize hashes.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, deps ChangePasswordDeps) ChangePasswordResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	cred, err := deps.GetCredentialByID(ctx, userID)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return ChangePasswordResult{Failure: ChangePasswordFailureLookup, Err: err}
	}
	if cred == nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureNotFound}
	}

	ok, err := deps.VerifyPassword(ctx, oldPassword, cred.PasswordHash)
	if err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureLookup, Err: err}
	}
	if !ok {
		return ChangePasswordResult{Failure: ChangePasswordFailureInvalidOld}
	}

	previous := append([]string{cred.PasswordHash}, cred.PasswordHistory...)
	if deps.HistorySize > 0 && len(previous) > deps.HistorySize {
		previous = previous[:deps.HistorySize]
	}
	for _, h := range previous {
		reused, err := deps.VerifyPassword(ctx, newPassword, h)
		if err != nil {
			// A malformed historical hash cannot match; skip it.
			continue
		}
		if reused {
			return ChangePasswordResult{Failure: ChangePasswordFailureReuse}
		}
	}

	hash, err := deps.HashPassword(ctx, newPassword)
	if err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureHash, Err: err}
	}

	updated := cred.Clone()
	updated.PasswordHash = hash
	updated.PasswordHistory = previous
	updated.LastChangedAt = deps.Now()
	updated.FailedAttempts = 0
	updated.LockedUntil = time.Time{}
	if err := deps.SaveCredential(ctx, updated); err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureSave, Err: err}
	}
	return ChangePasswordResult{Credential: updated}
}
