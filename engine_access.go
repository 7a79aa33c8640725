package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/rbac"
)

// SignUp is self-service registration. The account always gets the
// least-privileged rbac.RoleFamily and no team; elevated roles are granted
// only through CreateUser.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) error {
	return e.Register(ctx, RegisterRequest{
		UserID:   req.UserID,
		Email:    req.Email,
		Password: req.Password,
		Role:     rbac.RoleFamily,
	})
}

// CreateUser registers an account with any role on behalf of actor, who must
// hold MANAGE_USERS on users.
func (e *Engine) CreateUser(ctx context.Context, actor *AuthResult, req RegisterRequest) error {
	if err := e.Permit(ctx, actor, rbac.ManageUsers, rbac.ResourceUsers, rbac.Context{}); err != nil {
		return err
	}
	return e.Register(ctx, req)
}

// ApproveAccess records that approver cleared userID for teamID's data,
// which satisfies the approved-by-coach condition for that pair. The
// approver needs APPROVE_ACCESS on players for the team.
func (e *Engine) ApproveAccess(ctx context.Context, approver *AuthResult, userID, teamID string) error {
	if err := e.checkApprover(ctx, approver, userID, teamID); err != nil {
		return err
	}
	if err := e.approvals.Grant(ctx, userID, teamID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.emitAudit(ctx, auditEventAccessApproved, SeverityLow, true, userID, "", nil, func() map[string]string {
		return map[string]string{"team_id": teamID, "approved_by": approver.UserID}
	})
	return nil
}

// RevokeApproval withdraws an approval made by ApproveAccess. Revoking an
// approval that does not exist succeeds.
func (e *Engine) RevokeApproval(ctx context.Context, approver *AuthResult, userID, teamID string) error {
	if err := e.checkApprover(ctx, approver, userID, teamID); err != nil {
		return err
	}
	if err := e.approvals.Revoke(ctx, userID, teamID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.emitAudit(ctx, auditEventAccessRevoked, SeverityLow, true, userID, "", nil, func() map[string]string {
		return map[string]string{"team_id": teamID, "revoked_by": approver.UserID}
	})
	return nil
}

func (e *Engine) checkApprover(ctx context.Context, approver *AuthResult, userID, teamID string) error {
	if userID == "" || teamID == "" {
		return fmt.Errorf("%w: user and team are required", ErrInvalidInput)
	}
	if err := e.Permit(ctx, approver, rbac.ApproveAccess, rbac.ResourcePlayers, rbac.Context{TargetTeamID: teamID}); err != nil {
		return err
	}
	if _, err := e.credentials.GetByID(ctx, userID); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return fmt.Errorf("%w: unknown user", ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
