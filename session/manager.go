package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal"
)

// Config controls session lifetime policy.
type Config struct {
	// MaxConcurrent caps live sessions per user. Creating one more evicts the
	// least recently active session.
	MaxConcurrent int
	// Lifetime is the sliding session duration. When less than half of it
	// remains, an access extends ExpiresAt to now+Lifetime.
	Lifetime time.Duration
	// InactivityTimeout ends a session that has not been used for this long.
	InactivityTimeout time.Duration
	Now               func() time.Time
}

// DefaultConfig returns five concurrent sessions, a 24h sliding lifetime and
// a 30 minute inactivity timeout.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     5,
		Lifetime:          24 * time.Hour,
		InactivityTimeout: 30 * time.Minute,
	}
}

// Params describes a session to create. Token bindings are filled in by
// the caller after issuing the first token pair.
type Params struct {
	SessionID        string
	UserID           string
	Role             string
	TeamID           string
	IP               string
	UserAgent        string
	AcceptLanguage   string
	RefreshJTI       string
	RefreshExpiresAt time.Time
	AccessJTI        string
	AccessExpiresAt  time.Time
}

// Manager applies lifetime policy on top of a Store.
type Manager struct {
	store  Store
	config Config
	risk   RiskPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewManager returns a Manager. A nil risk policy flags nothing; a nil
// logger discards output.
func NewManager(store Store, cfg Config, risk RiskPolicy, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = def.Lifetime
	}
	if cfg.InactivityTimeout < 0 {
		cfg.InactivityTimeout = 0
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if risk == nil {
		risk = NoRisk{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, config: cfg, risk: risk, logger: logger, now: now}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.config }

// NewID returns a fresh random session id.
func (m *Manager) NewID() (string, error) {
	return internal.NewSessionID()
}

// Create stores a new active session and returns it with any sessions it
// evicted to stay within MaxConcurrent.
func (m *Manager) Create(ctx context.Context, p Params) (*Session, []*Session, error) {
	if p.SessionID == "" || p.UserID == "" || p.Role == "" {
		return nil, nil, errors.New("session id, user id and role are required")
	}

	now := m.now()
	fingerprint := internal.Fingerprint(p.UserAgent, p.AcceptLanguage)

	existing, err := m.store.ListForUser(ctx, p.UserID)
	if err != nil {
		return nil, nil, err
	}
	flags := m.risk.Assess(ctx, Signals{
		UserID:      p.UserID,
		IP:          p.IP,
		Fingerprint: fingerprint,
		Existing:    existing,
	})

	sess := &Session{
		SessionID:         p.SessionID,
		UserID:            p.UserID,
		Role:              p.Role,
		TeamID:            p.TeamID,
		DeviceFingerprint: fingerprint,
		IPAddress:         p.IP,
		CreatedAt:         now,
		LastAccessAt:      now,
		ExpiresAt:         now.Add(m.config.Lifetime),
		Active:            true,
		RiskFlags:         flags,
		RefreshJTI:        p.RefreshJTI,
		RefreshExpiresAt:  p.RefreshExpiresAt,
		AccessJTI:         p.AccessJTI,
		AccessExpiresAt:   p.AccessExpiresAt,
	}

	evicted, err := m.store.Create(ctx, sess, m.config.MaxConcurrent)
	if err != nil {
		return nil, nil, err
	}
	if len(flags) > 0 {
		m.logger.Info("session created with risk flags",
			zap.String("user_id", p.UserID),
			zap.String("session_id", p.SessionID),
			zap.Strings("risk_flags", flags),
		)
	}
	for _, e := range evicted {
		m.logger.Debug("session evicted",
			zap.String("user_id", e.UserID),
			zap.String("session_id", e.SessionID),
		)
	}
	return sess, evicted, nil
}

// Check loads a session and returns it only if it is active now. It does
// not record an access.
func (m *Manager) Check(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.StateAt(m.now(), m.config.InactivityTimeout) {
	case StateActive:
		return sess, nil
	case StateExpired:
		return nil, ErrExpired
	default:
		return nil, ErrNotFound
	}
}

// Validate is Check plus an access: it updates LastAccessAt and slides the
// expiry when less than half the lifetime remains.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.Check(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	return m.store.Touch(ctx, sessionID, now, m.slide(sess, now))
}

// Rotate swaps the bound refresh jti from expectedJTI to the new binding.
// It fails with ErrRefreshMismatch if another refresh already rotated it.
func (m *Manager) Rotate(ctx context.Context, sessionID, expectedJTI string, next Rotation) (*Session, error) {
	sess, err := m.Check(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	next.At = now
	if extended := m.slide(sess, now); extended.After(sess.ExpiresAt) {
		next.ExpiresAt = extended
	}
	return m.store.RotateRefresh(ctx, sessionID, expectedJTI, next)
}

// Revoke ends one session.
func (m *Manager) Revoke(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Delete(ctx, sessionID)
}

// RevokeAll ends every session of userID except exceptSessionID (which may
// be empty).
func (m *Manager) RevokeAll(ctx context.Context, userID, exceptSessionID string) ([]*Session, error) {
	return m.store.DeleteAllForUser(ctx, userID, exceptSessionID)
}

// List returns the user's active sessions, most recently active first.
func (m *Manager) List(ctx context.Context, userID string) ([]*Session, error) {
	all, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := all[:0]
	for _, s := range all {
		if s.StateAt(now, m.config.InactivityTimeout) == StateActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessAt.After(out[j].LastAccessAt)
	})
	return out, nil
}

// Sweep removes expired sessions from stores that need it and returns the
// number removed.
func (m *Manager) Sweep(ctx context.Context) int {
	sw, ok := m.store.(Sweeper)
	if !ok {
		return 0
	}
	return sw.SweepExpired(ctx, m.now(), m.config.InactivityTimeout)
}

func (m *Manager) slide(sess *Session, now time.Time) time.Time {
	if sess.ExpiresAt.Sub(now) < m.config.Lifetime/2 {
		return now.Add(m.config.Lifetime)
	}
	return sess.ExpiresAt
}
