package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/ratelimit"
)

// CheckRateLimit runs req through the rate limiting and abuse engine. A
// rejected request returns the decision together with a *RateLimitedError
// whose RetryAfter is positive. With rate limiting disabled every request
// is allowed.
func (e *Engine) CheckRateLimit(ctx context.Context, req ratelimit.Request) (ratelimit.Decision, error) {
	if err := e.ready(); err != nil {
		return ratelimit.Decision{}, err
	}
	if e.limiter == nil {
		return ratelimit.Decision{Allowed: true}, nil
	}
	if req.IP == "" {
		req.IP = ClientIPFromContext(ctx)
	}

	decision, err := e.limiter.Check(ctx, req)
	if err != nil {
		e.warn("goGuard: rate limit check failed", "path", req.Path, "error", err)
		return ratelimit.Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if decision.Allowed {
		return decision, nil
	}

	e.metricInc(MetricRateLimitHit)
	switch decision.Mitigation {
	case ratelimit.MitigationBlock:
		e.metricInc(MetricIPBlocked)
	case ratelimit.MitigationChallenge:
		e.metricInc(MetricChallengeIssued)
	}

	rlErr := &RateLimitedError{
		RetryAfter:  decision.RetryAfter,
		Rule:        decision.Rule,
		ThreatLevel: decision.ThreatLevel,
		Mitigation:  decision.Mitigation,
		ChallengeID: decision.ChallengeID,
	}
	e.emitAudit(ctx, auditEventRateLimitTriggered, threatSeverity(decision.ThreatLevel), false, req.UserID, "", rlErr, func() map[string]string {
		return map[string]string{
			"rule":         decision.Rule,
			"path":         req.Path,
			"method":       req.Method,
			"threat_level": decision.ThreatLevel.String(),
			"mitigation":   string(decision.Mitigation),
		}
	})
	return decision, rlErr
}

// SolveChallenge clears the pending challenge for the client IP in ctx.
func (e *Engine) SolveChallenge(ctx context.Context, challengeID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.limiter == nil {
		return ErrChallengeInvalid
	}

	ip := ClientIPFromContext(ctx)
	if err := e.limiter.SolveChallenge(ip, challengeID); err != nil {
		e.emitAudit(ctx, auditEventChallengeSolved, SeverityMedium, false, "", "", ErrChallengeInvalid, nil)
		if errors.Is(err, ratelimit.ErrNoChallenge) || errors.Is(err, ratelimit.ErrChallengeMismatch) {
			return ErrChallengeInvalid
		}
		return fmt.Errorf("%w: %v", ErrChallengeInvalid, err)
	}

	e.metricInc(MetricChallengeSolved)
	e.emitAudit(ctx, auditEventChallengeSolved, SeverityInfo, true, "", "", nil, nil)
	return nil
}

// checkEndpoint applies the rate limit for an engine-handled endpoint such
// as login or refresh, using the client IP from ctx.
func (e *Engine) checkEndpoint(ctx context.Context, path, userID string) error {
	if e.limiter == nil || path == "" {
		return nil
	}
	_, err := e.CheckRateLimit(ctx, ratelimit.Request{
		IP:     ClientIPFromContext(ctx),
		UserID: userID,
		Path:   path,
		Method: "POST",
	})
	return err
}

func threatSeverity(level ratelimit.ThreatLevel) AuditSeverity {
	switch level {
	case ratelimit.ThreatCritical:
		return SeverityCritical
	case ratelimit.ThreatHigh:
		return SeverityHigh
	case ratelimit.ThreatMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
