package goGuard

import (
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goGuard/ratelimit"
)

var (
	// ErrInvalidCredentials is the single answer for unknown email, wrong
	// password and inactive account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout is in force, whatever the password.
	ErrAccountLocked = errors.New("account locked")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed, forged, revoked and mismatched tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenReplayed means a consumed refresh token was presented again.
	// Every session of the user has been revoked.
	ErrTokenReplayed = errors.New("refresh token replayed")
	// ErrSessionNotFound is returned when the token's session ended or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRateLimited is matched by every *RateLimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrIPBlocked is matched by a *RateLimitedError for a blocked source IP.
	ErrIPBlocked = errors.New("ip blocked")
	// ErrChallengeRequired is matched by a *RateLimitedError for a source IP
	// with a pending challenge.
	ErrChallengeRequired = errors.New("challenge required")
	// ErrChallengeInvalid is returned by SolveChallenge for an unknown or
	// wrong challenge.
	ErrChallengeInvalid = errors.New("challenge invalid")
	// ErrPermissionDenied is matched by every *PermissionDeniedError.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCSRFValidationFailed is matched by every *CSRFError.
	ErrCSRFValidationFailed = errors.New("csrf validation failed")
	// ErrPasswordPolicy is returned when a new password fails length rules.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrPasswordReuse is returned when a new password matches a recent one.
	ErrPasswordReuse = errors.New("password reuse not allowed")
	// ErrInvalidInput is returned for malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownRole is returned by Register for a role the policy lacks.
	ErrUnknownRole = errors.New("unknown role")
	// ErrAccountExists is returned by Register for a taken email or user ID.
	ErrAccountExists = errors.New("account already exists")
	// ErrBackendUnavailable wraps store, blacklist and limiter failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned by methods on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// RateLimitedError is returned when a request is rejected by the rate
// limiting and abuse engine. RetryAfter is always positive.
type RateLimitedError struct {
	RetryAfter  time.Duration
	Rule        string
	ThreatLevel ratelimit.ThreatLevel
	Mitigation  ratelimit.Mitigation
	// ChallengeID is set when Mitigation is a challenge; pass it to
	// SolveChallenge.
	ChallengeID string
}

func (e *RateLimitedError) Error() string {
	msg := "rate limited"
	switch e.Mitigation {
	case ratelimit.MitigationBlock:
		msg = "ip blocked"
	case ratelimit.MitigationChallenge:
		msg = "challenge required"
	}
	return msg + ", retry after " + strconv.FormatInt(e.RetryAfterSeconds(), 10) + "s"
}

// Is matches ErrRateLimited, plus ErrIPBlocked or ErrChallengeRequired
// according to the mitigation.
func (e *RateLimitedError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return true
	case ErrIPBlocked:
		return e.Mitigation == ratelimit.MitigationBlock
	case ErrChallengeRequired:
		return e.Mitigation == ratelimit.MitigationChallenge
	}
	return false
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1, for
// Retry-After headers.
func (e *RateLimitedError) RetryAfterSeconds() int64 {
	secs := int64((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// PermissionDeniedError carries a machine-readable reason such as
// "no_rule" or "condition_failed". It never names the rule that failed.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string { return "permission denied: " + e.Reason }

// Is matches ErrPermissionDenied.
func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// CSRFError carries the violation name, for example "already_used".
type CSRFError struct {
	Reason string
}

func (e *CSRFError) Error() string { return "csrf validation failed: " + e.Reason }

// Is matches ErrCSRFValidationFailed.
func (e *CSRFError) Is(target error) bool { return target == ErrCSRFValidationFailed }
