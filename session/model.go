package session

import "time"

// Session is one authenticated login of a user on one device.
type Session struct {
	SessionID         string    `json:"sid"`
	UserID            string    `json:"uid"`
	Role              string    `json:"role"`
	TeamID            string    `json:"team,omitempty"`
	DeviceFingerprint string    `json:"fp,omitempty"`
	IPAddress         string    `json:"ip,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastAccessAt      time.Time `json:"last_access_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	Active            bool      `json:"active"`
	RiskFlags         []string  `json:"risk_flags,omitempty"`

	RefreshJTI       string    `json:"rjti"`
	RefreshExpiresAt time.Time `json:"rexp"`
	AccessJTI        string    `json:"ajti"`
	AccessExpiresAt  time.Time `json:"aexp"`
	Rotation         uint32    `json:"rot"`
}

// State is the lifecycle state of a session as observed at a point in time.
type State int

const (
	StateActive State = iota
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// StateAt classifies s at now. idle is the inactivity timeout; zero disables it.
func (s *Session) StateAt(now time.Time, idle time.Duration) State {
	if s == nil || !s.Active {
		return StateRevoked
	}
	if !now.Before(s.ExpiresAt) {
		return StateExpired
	}
	if idle > 0 && !now.Before(s.LastAccessAt.Add(idle)) {
		return StateExpired
	}
	return StateActive
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.RiskFlags = append([]string(nil), s.RiskFlags...)
	return &out
}

// Rotation is the new token binding written by a successful refresh.
type Rotation struct {
	RefreshJTI       string
	RefreshExpiresAt time.Time
	AccessJTI        string
	AccessExpiresAt  time.Time
	At               time.Time
	// ExpiresAt, when non-zero, replaces the session expiry (sliding extension).
	ExpiresAt time.Time
}

func (r Rotation) apply(s *Session) {
	s.RefreshJTI = r.RefreshJTI
	s.RefreshExpiresAt = r.RefreshExpiresAt
	s.AccessJTI = r.AccessJTI
	s.AccessExpiresAt = r.AccessExpiresAt
	s.LastAccessAt = r.At
	if !r.ExpiresAt.IsZero() {
		s.ExpiresAt = r.ExpiresAt
	}
	s.Rotation++
}
