package goGuard

import (
	"github.com/MrEthical07/goGuard/internal/security"
	"github.com/MrEthical07/goGuard/ratelimit"
)

// SecurityReport is a read-only summary of the engine's effective security
// posture together with any configuration lint findings.
type SecurityReport struct {
	security.Report
	Findings LintResult
}

// SecurityReport reports the posture of e. It works on a closed engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	return SecurityReport{
		Report: security.BuildReport(security.ReportInput{
			ProductionMode:   cfg.ProductionMode,
			SigningAlgorithm: "HS256",
			AccessTTL:        cfg.Token.AccessTTL,
			RefreshTTL:       cfg.Token.RefreshTTL,
			Password: security.PasswordReport{
				Memory:      cfg.Password.Memory,
				Time:        cfg.Password.Time,
				Parallelism: cfg.Password.Parallelism,
				SaltLength:  cfg.Password.SaltLength,
				KeyLength:   cfg.Password.KeyLength,
			},
			SharedState:       e.distributed,
			MaxConcurrent:     cfg.Session.MaxConcurrent,
			InactivityTimeout: cfg.Session.InactivityTimeout,
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
			LockoutDuration:   cfg.Lockout.Duration,
			RateLimitEnabled:  cfg.RateLimit.Enabled && e.limiter != nil,
			RateLimitRules:    e.ruleCount(),
			CSRFStrict:        cfg.CSRF.Strict,
			AllowedOrigins:    len(cfg.CSRF.AllowedOrigins),
			AuditEnabled:      cfg.Audit.Enabled,
			AuditDropIfFull:   cfg.Audit.DropIfFull,
			HistorySize:       cfg.Password.HistorySize,
			UpgradeOnLogin:    cfg.Password.UpgradeOnLogin,
		}),
		Findings: cfg.Lint(),
	}
}

func (e *Engine) ruleCount() int {
	if e.config.RateLimit.Rules != nil {
		return len(e.config.RateLimit.Rules)
	}
	return len(ratelimit.DefaultRules())
}
