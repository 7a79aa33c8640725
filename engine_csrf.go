package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/csrf"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/session"
)

// IssueCSRFToken returns a new synchronizer token bound to an active
// session.
func (e *Engine) IssueCSRFToken(ctx context.Context, sessionID string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if !internal.ValidSessionID(sessionID) {
		return "", ErrSessionNotFound
	}
	if _, err := e.sessions.Check(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	token, err := e.csrf.Issue(sessionID)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricCSRFIssued)
	return token, nil
}

// ValidateCSRFToken checks req. Safe methods always pass. A failure returns
// *CSRFError naming the violation; origin mismatches are audited at high
// severity.
func (e *Engine) ValidateCSRFToken(ctx context.Context, req csrf.Request) error {
	if err := e.ready(); err != nil {
		return err
	}

	err := e.csrf.Validate(req)
	if err == nil {
		return nil
	}

	reason := "invalid_token"
	var verr *csrf.Error
	if errors.As(err, &verr) {
		reason = string(verr.Violation)
	}
	out := &CSRFError{Reason: reason}

	severity := SeverityMedium
	if reason == string(csrf.OriginMismatch) {
		severity = SeverityHigh
	}
	e.metricInc(MetricCSRFRejected)
	e.emitAudit(ctx, auditEventCSRFViolation, severity, false, "", req.SessionID, out, func() map[string]string {
		return map[string]string{
			"violation": reason,
			"method":    req.Method,
			"origin":    req.Origin,
		}
	})
	return out
}
