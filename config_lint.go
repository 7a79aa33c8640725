package goGuard

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding. Code is stable and machine-readable.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins findings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = w.Severity.String() + " " + w.Code + ": " + w.Message
	}
	return errors.New("goGuard config lint: " + strings.Join(parts, "; "))
}

// Lint reports settings that are valid but risky. Unlike Validate it never
// fails; callers decide which severities to act on.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Token.Leeway > time.Minute {
		add("leeway_large", LintWarn, "token leeway above 1m widens the replay window of expired tokens")
	}
	if c.Token.AccessTTL > 10*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live longer than 10m and cannot be revoked before the blacklist check")
	}
	if c.Token.RefreshTTL > 14*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live longer than 14 days")
	}
	if c.Session.Lifetime < c.Token.RefreshTTL {
		add("session_shorter_than_refresh", LintInfo, "sessions end before their refresh tokens expire")
	}
	if c.Session.InactivityTimeout == 0 {
		add("inactivity_timeout_disabled", LintWarn, "idle sessions stay valid until their absolute expiry")
	}
	if !c.RateLimit.Enabled {
		add("rate_limits_disabled", LintHigh, "rate limiting and abuse mitigation are off")
	} else if c.RateLimit.Rules != nil && len(c.RateLimit.Rules) == 0 {
		add("rate_limits_disabled", LintHigh, "rate limiting is enabled with an empty rule set")
	}
	if c.Lockout.MaxFailedAttempts == 0 {
		add("lockout_disabled", LintHigh, "accounts are never locked after failed passwords")
	}
	if !c.CSRF.Strict {
		add("csrf_not_strict", LintHigh, "CSRF tokens can be replayed until they expire")
	}
	if len(c.CSRF.AllowedOrigins) == 0 {
		add("csrf_no_origin_check", LintInfo, "CSRF validation does not check Origin or Referer")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "security events are not audited")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory below 64 MB")
	}
	if c.Password.MinLength < 10 {
		add("password_min_length_low", LintInfo, "minimum password length below 10")
	}
	if !c.ProductionMode {
		add("production_mode_off", LintInfo, "ProductionMode hardening checks are disabled")
	}
	return out
}
