package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

var (
	// ErrInvalid covers every verification failure other than expiry:
	// bad signature, wrong algorithm, issuer/audience mismatch, missing claims.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired is returned for tokens past exp (after leeway).
	ErrExpired = errors.New("token expired")
)

// Config holds the signing secrets and validation rules.
//
// Access and refresh tokens are signed with distinct secrets, so a refresh
// token can never verify as an access token and vice versa.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	Now           func() time.Time
}

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID      string
	Role        string
	TeamID      string
	Permissions []string
}

// AccessClaims is the access token payload.
type AccessClaims struct {
	UID   string   `json:"uid"`
	Role  string   `json:"role"`
	SID   string   `json:"sid"`
	Team  string   `json:"team,omitempty"`
	Perms []string `json:"perms"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh token payload. Rotation counts how many times
// the session has been refreshed and ParentJTI links to the consumed token.
type RefreshClaims struct {
	UID       string `json:"uid"`
	SID       string `json:"sid"`
	Rotation  uint32 `json:"rot"`
	ParentJTI string `json:"pjti,omitempty"`
	jwt.RegisteredClaims
}

// Pair is a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken      string        `json:"access_token"`
	RefreshToken     string        `json:"refresh_token"`
	IssuedAt         time.Time     `json:"issued_at"`
	ExpiresIn        time.Duration `json:"expires_in"`
	AccessJTI        string        `json:"-"`
	RefreshJTI       string        `json:"-"`
	AccessExpiresAt  time.Time     `json:"-"`
	RefreshExpiresAt time.Time     `json:"-"`
}

// Manager issues and verifies HS256 token pairs.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, fmt.Errorf("access secret must be >= %d bytes", minSecretBytes)
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, fmt.Errorf("refresh secret must be >= %d bytes", minSecretBytes)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Issue signs a new pair for sub bound to sessionID. rotation and parentJTI
// are carried in the refresh token so lineage is visible in the claims.
func (m *Manager) Issue(sub Subject, sessionID string, rotation uint32, parentJTI string) (Pair, error) {
	if sub.UserID == "" || sub.Role == "" || sessionID == "" {
		return Pair{}, errors.New("subject user, role and session are required")
	}

	now := m.now().Truncate(time.Second)
	accessExp := now.Add(m.config.AccessTTL)
	refreshExp := now.Add(m.config.RefreshTTL)
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	perms := sub.Permissions
	if perms == nil {
		perms = []string{}
	}

	access := AccessClaims{
		UID:              sub.UserID,
		Role:             sub.Role,
		SID:              sessionID,
		Team:             sub.TeamID,
		Perms:            perms,
		RegisteredClaims: m.registered(accessJTI, now, accessExp),
	}
	refresh := RefreshClaims{
		UID:              sub.UserID,
		SID:              sessionID,
		Rotation:         rotation,
		ParentJTI:        parentJTI,
		RegisteredClaims: m.registered(refreshJTI, now, refreshExp),
	}

	accessToken, err := m.sign(access, m.config.AccessSecret)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := m.sign(refresh, m.config.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		IssuedAt:         now,
		ExpiresIn:        m.config.AccessTTL,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess verifies signature, algorithm, issuer, audience, time claims
// and required fields of an access token.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UID == "" || claims.SID == "" || claims.Role == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalid)
	}
	if err := m.checkFutureIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh is ParseAccess for refresh tokens.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UID == "" || claims.SID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalid)
	}
	if err := m.checkFutureIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) registered(jti string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(secret)
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	if tokenStr == "" {
		return ErrInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return ErrInvalid
	}
	return nil
}

func (m *Manager) checkFutureIAT(iat *jwt.NumericDate) error {
	if iat == nil {
		return fmt.Errorf("%w: missing iat", ErrInvalid)
	}
	if iat.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", ErrInvalid)
	}
	return nil
}
