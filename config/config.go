// Package config loads goGuard settings from an optional YAML file and
// GOGUARD_* environment variables using Viper. Every key defaults to the
// value in goGuard.DefaultConfig, so a file only lists what it changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/MrEthical07/goGuard/rbac"
)

// EnvPrefix prefixes every environment variable; nested keys join with
// underscores, e.g. GOGUARD_GUARD_TOKEN_ACCESS_SECRET.
const EnvPrefix = "GOGUARD"

// File is the full process configuration.
type File struct {
	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
	// PolicyFile is a YAML RBAC document. Empty means the built-in policy.
	PolicyFile string `mapstructure:"policy_file"`
	// DeviceRisk flags sessions from unseen devices or IPs.
	DeviceRisk bool        `mapstructure:"device_risk"`
	Admin      AdminConfig `mapstructure:"admin"`
	Guard      GuardConfig `mapstructure:"guard"`
}

// AdminConfig seeds one administrator at startup when Email is set. Public
// sign-up never grants privileged roles, so this is how the first admin
// exists.
type AdminConfig struct {
	UserID   string `mapstructure:"user_id"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// ServerConfig controls the demo HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustForwardedFor takes the client IP from X-Forwarded-For.
	TrustForwardedFor bool `mapstructure:"trust_forwarded_for"`
}

// RedisConfig selects the shared state backend. With Embedded set and no
// Addr, an in-process miniredis is started.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Embedded bool   `mapstructure:"embedded"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// GuardConfig mirrors goGuard.Config with file-friendly names.
type GuardConfig struct {
	ProductionMode bool            `mapstructure:"production_mode"`
	Token          TokenConfig     `mapstructure:"token"`
	Session        SessionConfig   `mapstructure:"session"`
	Password       PasswordConfig  `mapstructure:"password"`
	Lockout        LockoutConfig   `mapstructure:"lockout"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	CSRF           CSRFConfig      `mapstructure:"csrf"`
	Audit          AuditConfig     `mapstructure:"audit"`
	Metrics        MetricsConfig   `mapstructure:"metrics"`
	Sweep          SweepConfig     `mapstructure:"sweep"`
}

type TokenConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	Leeway        time.Duration `mapstructure:"leeway"`
	KeyID         string        `mapstructure:"key_id"`
}

type SessionConfig struct {
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	Lifetime          time.Duration `mapstructure:"lifetime"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	RedisPrefix       string        `mapstructure:"redis_prefix"`
}

type PasswordConfig struct {
	MemoryKB        uint32 `mapstructure:"memory_kb"`
	Time            uint32 `mapstructure:"time"`
	Parallelism     uint8  `mapstructure:"parallelism"`
	SaltLength      uint32 `mapstructure:"salt_length"`
	KeyLength       uint32 `mapstructure:"key_length"`
	MinLength       int    `mapstructure:"min_length"`
	MaxLength       int    `mapstructure:"max_length"`
	HistorySize     int    `mapstructure:"history_size"`
	UpgradeOnLogin  bool   `mapstructure:"upgrade_on_login"`
	HashConcurrency int    `mapstructure:"hash_concurrency"`
}

type LockoutConfig struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	Duration          time.Duration `mapstructure:"duration"`
}

type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ChallengeTTL  time.Duration `mapstructure:"challenge_ttl"`
	ThreatTTL     time.Duration `mapstructure:"threat_ttl"`
	LoginPath     string        `mapstructure:"login_path"`
	RefreshPath   string        `mapstructure:"refresh_path"`
	// Rules replaces the default rule set when non-empty.
	Rules []ratelimit.Rule `mapstructure:"rules"`
}

type CSRFConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	Strict         bool          `mapstructure:"strict"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequireHeader  bool          `mapstructure:"require_header"`
	HeaderName     string        `mapstructure:"header_name"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	LatencyHistograms bool `mapstructure:"latency_histograms"`
}

type SweepConfig struct {
	Sessions  time.Duration `mapstructure:"sessions"`
	Blacklist time.Duration `mapstructure:"blacklist"`
	RateLimit time.Duration `mapstructure:"rate_limit"`
	CSRF      time.Duration `mapstructure:"csrf"`
}

// Load reads path (if non-empty) and the environment. A missing file is an
// error; an empty path reads the environment only.
func Load(path string) (*File, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) check() error {
	if f.Server.Addr == "" {
		return errors.New("config: server.addr must be set")
	}
	if f.Server.ShutdownTimeout <= 0 {
		return errors.New("config: server.shutdown_timeout must be > 0")
	}
	if f.Redis.DB < 0 {
		return errors.New("config: redis.db must be >= 0")
	}
	if f.Admin.Email != "" && (f.Admin.UserID == "" || f.Admin.Password == "") {
		return errors.New("config: admin.user_id and admin.password are required with admin.email")
	}
	return nil
}

// EngineConfig converts the guard section into a goGuard.Config and
// validates it.
func (f *File) EngineConfig() (goGuard.Config, error) {
	g := f.Guard
	cfg := goGuard.Config{
		ProductionMode: g.ProductionMode,
		Token: goGuard.TokenConfig{
			AccessSecret:  []byte(g.Token.AccessSecret),
			RefreshSecret: []byte(g.Token.RefreshSecret),
			Issuer:        g.Token.Issuer,
			Audience:      g.Token.Audience,
			AccessTTL:     g.Token.AccessTTL,
			RefreshTTL:    g.Token.RefreshTTL,
			Leeway:        g.Token.Leeway,
			KeyID:         g.Token.KeyID,
		},
		Session: goGuard.SessionConfig{
			MaxConcurrent:     g.Session.MaxConcurrent,
			Lifetime:          g.Session.Lifetime,
			InactivityTimeout: g.Session.InactivityTimeout,
			RedisPrefix:       g.Session.RedisPrefix,
		},
		Password: goGuard.PasswordConfig{
			Memory:          g.Password.MemoryKB,
			Time:            g.Password.Time,
			Parallelism:     g.Password.Parallelism,
			SaltLength:      g.Password.SaltLength,
			KeyLength:       g.Password.KeyLength,
			MinLength:       g.Password.MinLength,
			MaxLength:       g.Password.MaxLength,
			HistorySize:     g.Password.HistorySize,
			UpgradeOnLogin:  g.Password.UpgradeOnLogin,
			HashConcurrency: g.Password.HashConcurrency,
		},
		Lockout: goGuard.LockoutConfig{
			MaxFailedAttempts: g.Lockout.MaxFailedAttempts,
			Duration:          g.Lockout.Duration,
		},
		RateLimit: goGuard.RateLimitConfig{
			Enabled:       g.RateLimit.Enabled,
			BlockDuration: g.RateLimit.BlockDuration,
			ChallengeTTL:  g.RateLimit.ChallengeTTL,
			ThreatTTL:     g.RateLimit.ThreatTTL,
			LoginPath:     g.RateLimit.LoginPath,
			RefreshPath:   g.RateLimit.RefreshPath,
		},
		CSRF: goGuard.CSRFConfig{
			TTL:            g.CSRF.TTL,
			Strict:         g.CSRF.Strict,
			AllowedOrigins: g.CSRF.AllowedOrigins,
			RequireHeader:  g.CSRF.RequireHeader,
			HeaderName:     g.CSRF.HeaderName,
		},
		Audit: goGuard.AuditConfig{
			Enabled:    g.Audit.Enabled,
			BufferSize: g.Audit.BufferSize,
			DropIfFull: g.Audit.DropIfFull,
		},
		Metrics: goGuard.MetricsConfig{
			Enabled:                 g.Metrics.Enabled,
			EnableLatencyHistograms: g.Metrics.LatencyHistograms,
		},
		Sweep: goGuard.SweepConfig{
			Sessions:  g.Sweep.Sessions,
			Blacklist: g.Sweep.Blacklist,
			RateLimit: g.Sweep.RateLimit,
			CSRF:      g.Sweep.CSRF,
		},
	}
	if len(g.RateLimit.Rules) > 0 {
		cfg.RateLimit.Rules = g.RateLimit.Rules
	}

	if err := cfg.Validate(); err != nil {
		return goGuard.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Policy loads PolicyFile, or returns the built-in policy when unset.
func (f *File) Policy() (*rbac.Policy, error) {
	if f.PolicyFile == "" {
		return rbac.DefaultPolicy(), nil
	}
	fh, err := os.Open(f.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("config: open policy: %w", err)
	}
	defer fh.Close()

	p, err := rbac.LoadPolicy(fh)
	if err != nil {
		return nil, fmt.Errorf("config: policy %s: %w", f.PolicyFile, err)
	}
	return p, nil
}

func setDefaults(v *viper.Viper) {
	d := goGuard.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.trust_forwarded_for", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embedded", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("policy_file", "")
	v.SetDefault("device_risk", false)
	v.SetDefault("admin.user_id", "")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("guard.production_mode", d.ProductionMode)

	v.SetDefault("guard.token.access_secret", "")
	v.SetDefault("guard.token.refresh_secret", "")
	v.SetDefault("guard.token.issuer", d.Token.Issuer)
	v.SetDefault("guard.token.audience", d.Token.Audience)
	v.SetDefault("guard.token.access_ttl", d.Token.AccessTTL)
	v.SetDefault("guard.token.refresh_ttl", d.Token.RefreshTTL)
	v.SetDefault("guard.token.leeway", d.Token.Leeway)
	v.SetDefault("guard.token.key_id", d.Token.KeyID)

	v.SetDefault("guard.session.max_concurrent", d.Session.MaxConcurrent)
	v.SetDefault("guard.session.lifetime", d.Session.Lifetime)
	v.SetDefault("guard.session.inactivity_timeout", d.Session.InactivityTimeout)
	v.SetDefault("guard.session.redis_prefix", d.Session.RedisPrefix)

	v.SetDefault("guard.password.memory_kb", d.Password.Memory)
	v.SetDefault("guard.password.time", d.Password.Time)
	v.SetDefault("guard.password.parallelism", d.Password.Parallelism)
	v.SetDefault("guard.password.salt_length", d.Password.SaltLength)
	v.SetDefault("guard.password.key_length", d.Password.KeyLength)
	v.SetDefault("guard.password.min_length", d.Password.MinLength)
	v.SetDefault("guard.password.max_length", d.Password.MaxLength)
	v.SetDefault("guard.password.history_size", d.Password.HistorySize)
	v.SetDefault("guard.password.upgrade_on_login", d.Password.UpgradeOnLogin)
	v.SetDefault("guard.password.hash_concurrency", d.Password.HashConcurrency)

	v.SetDefault("guard.lockout.max_failed_attempts", d.Lockout.MaxFailedAttempts)
	v.SetDefault("guard.lockout.duration", d.Lockout.Duration)

	v.SetDefault("guard.rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("guard.rate_limit.block_duration", d.RateLimit.BlockDuration)
	v.SetDefault("guard.rate_limit.challenge_ttl", d.RateLimit.ChallengeTTL)
	v.SetDefault("guard.rate_limit.threat_ttl", d.RateLimit.ThreatTTL)
	v.SetDefault("guard.rate_limit.login_path", d.RateLimit.LoginPath)
	v.SetDefault("guard.rate_limit.refresh_path", d.RateLimit.RefreshPath)

	v.SetDefault("guard.csrf.ttl", d.CSRF.TTL)
	v.SetDefault("guard.csrf.strict", d.CSRF.Strict)
	v.SetDefault("guard.csrf.allowed_origins", d.CSRF.AllowedOrigins)
	v.SetDefault("guard.csrf.require_header", d.CSRF.RequireHeader)
	v.SetDefault("guard.csrf.header_name", d.CSRF.HeaderName)

	v.SetDefault("guard.audit.enabled", d.Audit.Enabled)
	v.SetDefault("guard.audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("guard.audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("guard.metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("guard.metrics.latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("guard.sweep.sessions", d.Sweep.Sessions)
	v.SetDefault("guard.sweep.blacklist", d.Sweep.Blacklist)
	v.SetDefault("guard.sweep.rate_limit", d.Sweep.RateLimit)
	v.SetDefault("guard.sweep.csrf", d.Sweep.CSRF)
}
