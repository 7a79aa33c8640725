package goGuard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/ratelimit"
)

// Config is the full engine configuration. Build it from DefaultConfig or
// HighSecurityConfig and override fields; the engine copies it at Build.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	CSRF      CSRFConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Sweep     SweepConfig

	// ProductionMode turns on hardening checks in Validate.
	ProductionMode bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the HS256 access/refresh pair.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and storage.
type SessionConfig struct {
	MaxConcurrent     int
	Lifetime          time.Duration
	InactivityTimeout time.Duration
	// RedisPrefix namespaces session, blacklist and rate limit keys.
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and password policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	HistorySize    int
	UpgradeOnLogin bool
	// HashConcurrency bounds simultaneous argon2 computations. Zero means
	// GOMAXPROCS.
	HashConcurrency int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig locks an account after consecutive wrong passwords.
type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the rate limiting and abuse engine.
type RateLimitConfig struct {
	Enabled bool
	// Rules replaces ratelimit.DefaultRules when non-nil.
	Rules         []ratelimit.Rule
	BlockDuration time.Duration
	ChallengeTTL  time.Duration
	ThreatTTL     time.Duration
	// LoginPath and RefreshPath are the endpoints Authenticate and Refresh
	// are charged against.
	LoginPath   string
	RefreshPath string
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig configures synchronizer token validation.
type CSRFConfig struct {
	TTL            time.Duration
	Strict         bool
	AllowedOrigins []string
	RequireHeader  bool
	HeaderName     string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SWEEP CONFIG
====================================
*/

// SweepConfig sets background cleanup intervals. Zero disables a task.
type SweepConfig struct {
	Sessions  time.Duration
	Blacklist time.Duration
	RateLimit time.Duration
	CSRF      time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a development-friendly configuration. Secrets are
// left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:     "goguard",
			Audience:   "goguard-api",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			MaxConcurrent:     5,
			Lifetime:          7 * 24 * time.Hour,
			InactivityTimeout: 30 * time.Minute,
			RedisPrefix:       "goguard",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           1,
			Parallelism:    4,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      128,
			HistorySize:    5,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			Duration:          15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			BlockDuration: time.Hour,
			ChallengeTTL:  15 * time.Minute,
			ThreatTTL:     24 * time.Hour,
			LoginPath:     "/auth/login",
			RefreshPath:   "/auth/refresh",
		},
		CSRF: CSRFConfig{
			TTL:        24 * time.Hour,
			Strict:     true,
			HeaderName: "X-CSRF-Token",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Sweep: SweepConfig{
			Sessions:  time.Minute,
			Blacklist: time.Minute,
			RateLimit: 30 * time.Second,
			CSRF:      5 * time.Minute,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig for internet-facing deployments:
// shorter tokens and sessions, fewer concurrent sessions, origin and header
// checks on CSRF and ProductionMode validation.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.ProductionMode = true
	cfg.Token.AccessTTL = 2 * time.Minute
	cfg.Token.RefreshTTL = 24 * time.Hour
	cfg.Token.Leeway = 10 * time.Second
	cfg.Session.MaxConcurrent = 3
	cfg.Session.Lifetime = 24 * time.Hour
	cfg.Session.InactivityTimeout = 15 * time.Minute
	cfg.Password.Time = 3
	cfg.Password.MinLength = 12
	cfg.Password.HistorySize = 10
	cfg.Lockout.MaxFailedAttempts = 5
	cfg.Lockout.Duration = 30 * time.Minute
	cfg.CSRF.RequireHeader = true
	cfg.Audit.DropIfFull = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	out.CSRF.AllowedOrigins = append([]string(nil), cfg.CSRF.AllowedOrigins...)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make([]ratelimit.Rule, len(cfg.RateLimit.Rules))
		for i, r := range cfg.RateLimit.Rules {
			r.SubRules = append([]ratelimit.SubRule(nil), r.SubRules...)
			out.RateLimit.Rules[i] = r
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. In ProductionMode it also enforces
// hardening requirements.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.AccessSecret) < 32 {
		return errors.New("Token AccessSecret must be >= 32 bytes")
	}
	if len(c.Token.RefreshSecret) < 32 {
		return errors.New("Token RefreshSecret must be >= 32 bytes")
	}
	if string(c.Token.AccessSecret) == string(c.Token.RefreshSecret) {
		return errors.New("Token AccessSecret and RefreshSecret must differ")
	}
	if c.Token.Issuer == "" || c.Token.Audience == "" {
		return errors.New("Token Issuer and Audience are required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must exceed AccessTTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.MaxConcurrent <= 0 {
		return errors.New("Session MaxConcurrent must be > 0")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.InactivityTimeout < 0 {
		return errors.New("Session InactivityTimeout must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("Password HistorySize must be >= 0")
	}
	if c.Password.HashConcurrency < 0 {
		return errors.New("Password HashConcurrency must be >= 0")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts < 0 {
		return errors.New("Lockout MaxFailedAttempts must be >= 0")
	}
	if c.Lockout.MaxFailedAttempts > 0 && c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0 when lockout is enabled")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.BlockDuration < 0 || c.RateLimit.ChallengeTTL < 0 || c.RateLimit.ThreatTTL < 0 {
			return errors.New("RateLimit durations must be >= 0")
		}
		for _, r := range c.RateLimit.Rules {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("RateLimit rule %q: %w", r.Name, err)
			}
		}
		if !strings.HasPrefix(c.RateLimit.LoginPath, "/") || !strings.HasPrefix(c.RateLimit.RefreshPath, "/") {
			return errors.New("RateLimit LoginPath and RefreshPath must start with /")
		}
	}

	// CSRF
	if c.CSRF.TTL <= 0 {
		return errors.New("CSRF TTL must be > 0")
	}
	if c.CSRF.RequireHeader && http.CanonicalHeaderKey(c.CSRF.HeaderName) == "" {
		return errors.New("CSRF HeaderName is required when RequireHeader is set")
	}
	for _, o := range c.CSRF.AllowedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("CSRF AllowedOrigins entry %q must be scheme://host", o)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Sweep
	if c.Sweep.Sessions < 0 || c.Sweep.Blacklist < 0 || c.Sweep.RateLimit < 0 || c.Sweep.CSRF < 0 {
		return errors.New("Sweep intervals must be >= 0")
	}

	if c.ProductionMode {
		if !c.RateLimit.Enabled {
			return errors.New("ProductionMode requires RateLimit enabled")
		}
		if c.Lockout.MaxFailedAttempts == 0 {
			return errors.New("ProductionMode requires account lockout")
		}
		if !c.CSRF.Strict {
			return errors.New("ProductionMode requires strict CSRF tokens")
		}
		if c.Token.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires AccessTTL <= 15m")
		}
		if c.Password.MinLength < 10 {
			return errors.New("ProductionMode requires Password MinLength >= 10")
		}
		if !c.Audit.Enabled {
			return errors.New("ProductionMode requires Audit enabled")
		}
	}

	return nil
}
