package goGuard

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventAccountLocked        = "account_locked"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReplay        = "refresh_replay_detected"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventSessionEvicted       = "session_evicted"
	auditEventSessionRiskFlagged   = "session_risk_flagged"
	auditEventPasswordChange       = "password_change_success"
	auditEventPasswordChangeFailed = "password_change_failure"
	auditEventAccountCreated       = "account_created"
	auditEventAccessApproved       = "access_approved"
	auditEventAccessRevoked        = "access_approval_revoked"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventChallengeSolved      = "challenge_solved"
	auditEventPermissionDenied     = "permission_denied"
	auditEventCSRFViolation        = "csrf_violation"
)

// AuditErrorCode is the machine-readable error recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrIPBlocked          AuditErrorCode = "ip_blocked"
	auditErrChallengeRequired  AuditErrorCode = "challenge_required"
	auditErrTokenReplayed      AuditErrorCode = "token_replayed"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrCSRF               AuditErrorCode = "csrf_validation_failed"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit queues an event. metadataBuilder runs only when auditing is on.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	severity AuditSeverity,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrIPBlocked):
		return auditErrIPBlocked
	case errors.Is(err, ErrChallengeRequired):
		return auditErrChallengeRequired
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenReplayed):
		return auditErrTokenReplayed
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrChallengeInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrCSRFValidationFailed):
		return auditErrCSRF
	case errors.Is(err, ErrPasswordPolicy), errors.Is(err, ErrInvalidInput):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
