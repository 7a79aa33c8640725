package goGuard

import (
	"strings"
	"testing"
	"time"
)

func productionConfig() Config {
	cfg := HighSecurityConfig()
	cfg.Token.AccessSecret = []byte("access-secret-0123456789abcdef-0123456789")
	cfg.Token.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012345678")
	return cfg
}

func TestHighSecurityConfigValidates(t *testing.T) {
	cfg := productionConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected HighSecurityConfig to validate, got %v", err)
	}
	if !cfg.ProductionMode {
		t.Fatal("expected ProductionMode on")
	}
}

func TestProductionModeRequirements(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rate limits off", func(c *Config) { c.RateLimit.Enabled = false }, "RateLimit"},
		{"lockout off", func(c *Config) { c.Lockout.MaxFailedAttempts = 0 }, "lockout"},
		{"loose csrf", func(c *Config) { c.CSRF.Strict = false }, "CSRF"},
		{"long access ttl", func(c *Config) { c.Token.AccessTTL = time.Hour }, "AccessTTL"},
		{"short passwords", func(c *Config) { c.Password.MinLength = 8 }, "MinLength"},
		{"audit off", func(c *Config) { c.Audit.Enabled = false }, "Audit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := productionConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}

			// The same settings are accepted outside production mode.
			cfg.ProductionMode = false
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected non-production config to validate, got %v", err)
			}
		})
	}
}

func TestHighSecurityTightensDefaults(t *testing.T) {
	def, hi := DefaultConfig(), HighSecurityConfig()

	if hi.Token.AccessTTL >= def.Token.AccessTTL {
		t.Errorf("access ttl %v not shorter than default %v", hi.Token.AccessTTL, def.Token.AccessTTL)
	}
	if hi.Session.MaxConcurrent >= def.Session.MaxConcurrent {
		t.Errorf("max sessions %d not below default %d", hi.Session.MaxConcurrent, def.Session.MaxConcurrent)
	}
	if hi.Session.InactivityTimeout >= def.Session.InactivityTimeout {
		t.Errorf("inactivity timeout %v not shorter than default %v", hi.Session.InactivityTimeout, def.Session.InactivityTimeout)
	}
	if hi.Password.MinLength <= def.Password.MinLength {
		t.Errorf("min length %d not above default %d", hi.Password.MinLength, def.Password.MinLength)
	}
	if !hi.CSRF.RequireHeader {
		t.Error("expected CSRF header required")
	}
}

func TestEngineBuildsWithHighSecurityConfig(t *testing.T) {
	cfg := productionConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.BufferSize = 16

	engine, err := New().WithConfig(cfg).WithAuditSink(NoOpSink{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	engine.Close()
}
