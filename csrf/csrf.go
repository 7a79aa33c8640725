// Package csrf issues and validates per-session synchronizer tokens for
// state-changing requests.
//
// Tokens are random 256-bit values bound to one session. Only the SHA-256
// of a token is kept. In strict mode a token is consumed by its first
// successful validation.
package csrf

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal"
)

// ErrValidationFailed matches every *Error.
var ErrValidationFailed = errors.New("csrf validation failed")

// Violation names why a validation failed.
type Violation string

const (
	MissingToken    Violation = "missing_token"
	InvalidToken    Violation = "invalid_token"
	ExpiredToken    Violation = "expired_token"
	SessionMismatch Violation = "session_mismatch"
	AlreadyUsed     Violation = "already_used"
	OriginMismatch  Violation = "origin_mismatch"
	HeaderMismatch  Violation = "header_mismatch"
)

// Error is a failed validation.
type Error struct {
	Violation Violation
}

func (e *Error) Error() string { return "csrf validation failed: " + string(e.Violation) }

// Is reports whether target is ErrValidationFailed.
func (e *Error) Is(target error) bool { return target == ErrValidationFailed }

func violation(v Violation) error { return &Error{Violation: v} }

// Config controls token lifetime and request checks.
type Config struct {
	TTL time.Duration
	// Strict makes tokens one-time use.
	Strict bool
	// AllowedOrigins, when non-empty, is matched against the Origin header,
	// or the Referer's origin when Origin is absent. Entries are scheme://host[:port].
	AllowedOrigins []string
	// RequireHeader demands the token also arrive in HeaderName.
	RequireHeader bool
	HeaderName    string
	Now           func() time.Time
}

// DefaultConfig returns strict tokens valid for 24 hours.
func DefaultConfig() Config {
	return Config{
		TTL:        24 * time.Hour,
		Strict:     true,
		HeaderName: "X-CSRF-Token",
	}
}

// Request is the part of an HTTP request validation looks at.
type Request struct {
	Method    string
	SessionID string
	// Token is the submitted token, from a form field or the header.
	Token       string
	Origin      string
	Referer     string
	HeaderToken string
}

// Token is a stored token record.
type Token struct {
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
}

// StateChanging reports whether method needs CSRF protection.
func StateChanging(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Guard issues and validates tokens. It is safe for concurrent use.
type Guard struct {
	config  Config
	origins map[string]struct{}
	store   *store
	now     func() time.Time
	logger  *zap.Logger
}

// NewGuard returns a Guard. Zero TTL and empty HeaderName fall back to the
// defaults.
func NewGuard(cfg Config, logger *zap.Logger) *Guard {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return &Guard{config: cfg, origins: origins, store: newStore(), now: now, logger: logger}
}

// Config returns the effective configuration.
func (g *Guard) Config() Config { return g.config }

// Issue returns a fresh token bound to sessionID.
func (g *Guard) Issue(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("csrf: session id is required")
	}
	token, err := internal.NewToken()
	if err != nil {
		return "", err
	}
	now := g.now()
	g.store.put(digest(token), &Token{
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.config.TTL),
	})
	return token, nil
}

// Validate checks req. Safe methods pass without a token. Failures are
// returned as *Error and logged with their violation.
func (g *Guard) Validate(req Request) error {
	if !StateChanging(req.Method) {
		return nil
	}
	err := g.validate(req)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			level := zap.WarnLevel
			if e.Violation == OriginMismatch {
				level = zap.ErrorLevel
			}
			g.logger.Check(level, "csrf violation").Write(
				zap.String("violation", string(e.Violation)),
				zap.String("session_id", req.SessionID),
				zap.String("method", req.Method),
				zap.String("origin", req.Origin),
			)
		}
	}
	return err
}

func (g *Guard) validate(req Request) error {
	if req.Token == "" {
		return violation(MissingToken)
	}
	if len(g.origins) > 0 && !g.originAllowed(req) {
		return violation(OriginMismatch)
	}
	if g.config.RequireHeader && !internal.EqualConstantTime(req.HeaderToken, req.Token) {
		return violation(HeaderMismatch)
	}

	now := g.now()
	var result Violation
	found := g.store.update(digest(req.Token), func(t *Token) {
		switch {
		case !internal.EqualConstantTime(t.SessionID, req.SessionID):
			result = SessionMismatch
		case !now.Before(t.ExpiresAt):
			result = ExpiredToken
		case g.config.Strict && t.Used:
			result = AlreadyUsed
		default:
			t.Used = true
		}
	})
	if !found {
		return violation(InvalidToken)
	}
	if result != "" {
		return violation(result)
	}
	return nil
}

func (g *Guard) originAllowed(req Request) bool {
	origin := req.Origin
	if origin == "" && req.Referer != "" {
		u, err := url.Parse(req.Referer)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		origin = u.Scheme + "://" + u.Host
	}
	if origin == "" {
		return false
	}
	_, ok := g.origins[strings.ToLower(strings.TrimSuffix(origin, "/"))]
	return ok
}

// RevokeSession drops every token bound to sessionID.
func (g *Guard) RevokeSession(sessionID string) int {
	return g.store.deleteSession(sessionID)
}

// Sweep removes expired tokens.
func (g *Guard) Sweep(now time.Time) int {
	return g.store.sweep(now)
}

// Len returns the number of stored tokens.
func (g *Guard) Len() int { return g.store.len() }

func digest(token string) [32]byte { return sha256.Sum256([]byte(token)) }
