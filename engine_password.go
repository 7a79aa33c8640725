package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/password"
)

// ChangePassword replaces the user's password and revokes every session
// except req.SessionID. The new password must satisfy the length policy and
// differ from the current one and the last Password.HistorySize ones.
func (e *Engine) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.checkPasswordPolicy(req.NewPassword); err != nil {
		e.passwordChangeFailed(ctx, req.UserID, err)
		return err
	}

	res := flows.RunChangePassword(ctx, req.UserID, req.OldPassword, req.NewPassword, e.flows.ChangePassword)
	if res.Failure != flows.ChangePasswordFailureNone {
		var out error
		switch res.Failure {
		case flows.ChangePasswordFailureNotFound, flows.ChangePasswordFailureInvalidOld:
			out = ErrInvalidCredentials
		case flows.ChangePasswordFailureReuse:
			out = ErrPasswordReuse
		case flows.ChangePasswordFailureHash:
			if errors.Is(res.Err, password.ErrTooShort) {
				out = ErrPasswordPolicy
			} else {
				out = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
			}
		default:
			out = fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
		}
		e.passwordChangeFailed(ctx, req.UserID, out)
		return out
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, SeverityMedium, true, req.UserID, req.SessionID, nil, nil)

	if _, err := e.revokeAll(ctx, req.UserID, req.SessionID, "password_change"); err != nil {
		return err
	}
	return nil
}

func (e *Engine) passwordChangeFailed(ctx context.Context, userID string, err error) {
	e.metricInc(MetricPasswordChangeFailure)
	e.emitAudit(ctx, auditEventPasswordChangeFailed, SeverityLow, false, userID, "", err, nil)
}

// Register creates an active credential for a new user. The role must exist
// in the RBAC policy and the email must be unused.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !e.policy.HasRole(req.Role) {
		return ErrUnknownRole
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return err
	}

	// Cheap early rejection; Create below is the authoritative check.
	email := credential.NormalizeEmail(req.Email)
	if existing, err := e.credentials.Get(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	} else if existing != nil {
		return ErrAccountExists
	}

	hash, err := e.passwords.Hash(ctx, req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return ErrPasswordPolicy
		}
		return err
	}

	cred := &credential.Credential{
		UserID:        req.UserID,
		Email:         email,
		Role:          req.Role,
		TeamID:        req.TeamID,
		PasswordHash:  hash,
		LastChangedAt: e.now(),
		Active:        true,
	}
	if err := e.credentials.Create(ctx, cred); err != nil {
		if errors.Is(err, credential.ErrDuplicateEmail) || errors.Is(err, credential.ErrDuplicateUser) {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, SeverityInfo, true, req.UserID, "", nil, func() map[string]string {
		return map[string]string{"role": req.Role}
	})
	return nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if limit := e.config.Password.MaxLength; limit > 0 && len(pw) > limit {
		return fmt.Errorf("%w: longer than %d characters", ErrPasswordPolicy, limit)
	}
	return nil
}
