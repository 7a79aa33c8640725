package goGuard

import (
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/ratelimit"
)

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func TestLint_DefaultConfigHasNoHighFindings(t *testing.T) {
	cfg := DefaultConfig()
	if high := cfg.Lint().BySeverity(LintHigh); len(high) != 0 {
		t.Fatalf("default config should have no HIGH findings, got %v", high.Codes())
	}
}

func TestLint_HighSecurityConfigMinimalWarnings(t *testing.T) {
	cfg := HighSecurityConfig()
	codes := cfg.Lint().Codes()

	unwanted := []string{
		"leeway_large",
		"access_ttl_long",
		"refresh_ttl_long",
		"rate_limits_disabled",
		"session_shorter_than_refresh",
		"lockout_disabled",
		"csrf_not_strict",
		"audit_disabled",
		"production_mode_off",
	}
	for _, code := range unwanted {
		if containsCode(codes, code) {
			t.Errorf("HighSecurityConfig should not produce %q", code)
		}
	}
}

func TestLint_Findings(t *testing.T) {
	cases := []struct {
		code   string
		sev    LintSeverity
		mutate func(*Config)
	}{
		{"leeway_large", LintWarn, func(c *Config) { c.Token.Leeway = 90 * time.Second }},
		{"access_ttl_long", LintWarn, func(c *Config) { c.Token.AccessTTL = 15 * time.Minute }},
		{"refresh_ttl_long", LintWarn, func(c *Config) { c.Token.RefreshTTL = 30 * 24 * time.Hour }},
		{"session_shorter_than_refresh", LintInfo, func(c *Config) { c.Session.Lifetime = time.Hour }},
		{"inactivity_timeout_disabled", LintWarn, func(c *Config) { c.Session.InactivityTimeout = 0 }},
		{"rate_limits_disabled", LintHigh, func(c *Config) { c.RateLimit.Enabled = false }},
		{"rate_limits_disabled", LintHigh, func(c *Config) { c.RateLimit.Rules = []ratelimit.Rule{} }},
		{"lockout_disabled", LintHigh, func(c *Config) { c.Lockout.MaxFailedAttempts = 0 }},
		{"csrf_not_strict", LintHigh, func(c *Config) { c.CSRF.Strict = false }},
		{"audit_disabled", LintWarn, func(c *Config) { c.Audit.Enabled = false }},
		{"argon2_memory_low", LintWarn, func(c *Config) { c.Password.Memory = 16 * 1024 }},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			for _, w := range cfg.Lint() {
				if w.Code == tc.code {
					if w.Severity != tc.sev {
						t.Fatalf("expected %s severity, got %s", tc.sev, w.Severity)
					}
					return
				}
			}
			t.Fatalf("expected %s finding", tc.code)
		})
	}
}

func TestLint_AsError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CSRF.Strict = false
	cfg.Lockout.MaxFailedAttempts = 0

	res := cfg.Lint()
	err := res.AsError(LintHigh)
	if err == nil {
		t.Fatal("expected error for HIGH findings")
	}
	for _, code := range []string{"csrf_not_strict", "lockout_disabled"} {
		if !strings.Contains(err.Error(), code) {
			t.Errorf("error should mention %s: %v", code, err)
		}
	}
	if strings.Contains(err.Error(), "production_mode_off") {
		t.Error("INFO findings must not be in a HIGH error")
	}

	hardened := HighSecurityConfig()
	if err := hardened.Lint().AsError(LintHigh); err != nil {
		t.Fatalf("expected no HIGH findings, got %v", err)
	}
}

func TestLint_NeverMutatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.Token.AccessTTL
	_ = cfg.Lint()
	if cfg.Token.AccessTTL != before {
		t.Fatal("Lint must not modify the config")
	}
}

func TestLintSeverityString(t *testing.T) {
	for sev, want := range map[LintSeverity]string{LintInfo: "INFO", LintWarn: "WARN", LintHigh: "HIGH", LintSeverity(9): "UNKNOWN"} {
		if got := sev.String(); got != want {
			t.Errorf("%d: expected %s, got %s", sev, want, got)
		}
	}
}
