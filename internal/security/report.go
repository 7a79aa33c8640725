package security

import "time"

// PasswordReport is the Argon2id cost in effect.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report summarizes the effective security posture of an engine.
type Report struct {
	ProductionMode      bool
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Argon2              PasswordReport
	SharedState         bool
	MaxConcurrent       int
	SessionCapsActive   bool
	InactivityTimeout   time.Duration
	LockoutActive       bool
	RateLimitingActive  bool
	RateLimitRules      int
	CSRFStrict          bool
	CSRFOriginCheck     bool
	AuditEnabled        bool
	AuditMayDrop        bool
	PasswordHistorySize int
	HashUpgradeOnLogin  bool
}

// ReportInput is the flattened configuration a Report is derived from.
type ReportInput struct {
	ProductionMode    bool
	SigningAlgorithm  string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	Password          PasswordReport
	SharedState       bool
	MaxConcurrent     int
	InactivityTimeout time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	RateLimitEnabled  bool
	RateLimitRules    int
	CSRFStrict        bool
	AllowedOrigins    int
	AuditEnabled      bool
	AuditDropIfFull   bool
	HistorySize       int
	UpgradeOnLogin    bool
}

// BuildReport derives the posture flags from input.
func BuildReport(input ReportInput) Report {
	return Report{
		ProductionMode:      input.ProductionMode,
		SigningAlgorithm:    input.SigningAlgorithm,
		AccessTTL:           input.AccessTTL,
		RefreshTTL:          input.RefreshTTL,
		Argon2:              input.Password,
		SharedState:         input.SharedState,
		MaxConcurrent:       input.MaxConcurrent,
		SessionCapsActive:   input.MaxConcurrent > 0,
		InactivityTimeout:   input.InactivityTimeout,
		LockoutActive:       input.MaxFailedAttempts > 0 && input.LockoutDuration > 0,
		RateLimitingActive:  input.RateLimitEnabled && input.RateLimitRules > 0,
		RateLimitRules:      input.RateLimitRules,
		CSRFStrict:          input.CSRFStrict,
		CSRFOriginCheck:     input.AllowedOrigins > 0,
		AuditEnabled:        input.AuditEnabled,
		AuditMayDrop:        input.AuditEnabled && input.AuditDropIfFull,
		PasswordHistorySize: input.HistorySize,
		HashUpgradeOnLogin:  input.UpgradeOnLogin,
	}
}
