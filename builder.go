package goGuard

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/blacklist"
	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/csrf"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/MrEthical07/goGuard/rbac"
	"github.com/MrEthical07/goGuard/session"
)

// Builder assembles an Engine. Every dependency is optional except the
// token secrets in Config; missing stores default to in-memory
// implementations.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials credential.Store
	policy      *rbac.Policy
	approvals   rbac.Approvals
	auditSink   AuditSink
	logger      *zap.Logger
	risk        session.RiskPolicy
	now         func() time.Time
	built       bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis shares sessions, the token blacklist and fixed-window rate
// limit counters through Redis. Without it the engine is single-process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the user credential backend.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.credentials = store
	return b
}

// WithPolicy sets the compiled RBAC policy. Defaults to rbac.DefaultPolicy.
func (b *Builder) WithPolicy(p *rbac.Policy) *Builder {
	b.policy = p
	return b
}

// WithApprovals sets where coach approvals are kept. Defaults to Redis when
// WithRedis is used, else to process memory.
func (b *Builder) WithApprovals(a rbac.Approvals) *Builder {
	b.approvals = a
	return b
}

// WithAuditSink sets where audit events go. Defaults to a ZapSink on the
// engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRiskPolicy sets the policy that flags suspicious new sessions.
func (b *Builder) WithRiskPolicy(p session.RiskPolicy) *Builder {
	b.risk = p
	return b
}

// WithClock overrides time.Now for every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. A Builder
// can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	credentials := b.credentials
	if credentials == nil {
		credentials = credential.NewMemoryStore()
	}
	policy := b.policy
	if policy == nil {
		policy = rbac.DefaultPolicy()
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	// -------- SHARED STATE --------
	var (
		revoked  blacklist.Blacklist
		sessions session.Store
	)
	approvals := b.approvals
	if b.redis != nil {
		revoked = blacklist.NewRedis(b.redis, cfg.Session.RedisPrefix, now)
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, now)
		if approvals == nil {
			approvals = rbac.NewRedisApprovals(b.redis, cfg.Session.RedisPrefix)
		}
	} else {
		revoked = blacklist.NewMemory(now)
		sessions = session.NewMemoryStore()
	}
	if approvals == nil {
		approvals = rbac.NewMemoryApprovals()
	}

	sessionManager := session.NewManager(sessions, session.Config{
		MaxConcurrent:     cfg.Session.MaxConcurrent,
		Lifetime:          cfg.Session.Lifetime,
		InactivityTimeout: cfg.Session.InactivityTimeout,
		Now:               now,
	}, b.risk, logger.Named("session"))

	// -------- RATE LIMITING --------
	var limiter *ratelimit.Engine
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewEngine(ratelimit.EngineConfig{
			Rules:         cfg.RateLimit.Rules,
			BlockDuration: cfg.RateLimit.BlockDuration,
			ChallengeTTL:  cfg.RateLimit.ChallengeTTL,
			ThreatTTL:     cfg.RateLimit.ThreatTTL,
			Now:           now,
			Redis:         b.redis,
			RedisPrefix:   cfg.Session.RedisPrefix,
			Logger:        logger.Named("ratelimit"),
		})
		if err != nil {
			return nil, fmt.Errorf("ratelimit: %w", err)
		}
	}

	// -------- CSRF --------
	guard := csrf.NewGuard(csrf.Config{
		TTL:            cfg.CSRF.TTL,
		Strict:         cfg.CSRF.Strict,
		AllowedOrigins: cfg.CSRF.AllowedOrigins,
		RequireHeader:  cfg.CSRF.RequireHeader,
		HeaderName:     cfg.CSRF.HeaderName,
		Now:            now,
	}, logger.Named("csrf"))

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = NewZapSink(logger.Named("audit"))
	}
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	engine := &Engine{
		config:      cfg,
		logger:      logger,
		now:         now,
		credentials: credentials,
		passwords:   password.NewPool(hasher, cfg.Password.HashConcurrency),
		tokens:      tokens,
		blacklist:   revoked,
		sessions:    sessionManager,
		limiter:     limiter,
		policy:      policy,
		approvals:   approvals,
		csrf:        guard,
		audit:       dispatcher,
		metrics:     NewMetrics(cfg.Metrics),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		distributed: b.redis != nil,
	}
	engine.flows = engine.buildFlowDeps()
	engine.janitor = engine.buildJanitor()

	b.built = true
	return engine, nil
}
