package goGuard

import (
	"time"

	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// TokenPair is an issued access/refresh pair.
type TokenPair = jwt.Pair

// Session is a server-side session record.
type Session = session.Session

// LoginResult is returned by Authenticate.
type LoginResult struct {
	Tokens  TokenPair
	Session *Session
	// Evicted lists sessions ended to keep the user within the concurrent
	// session limit.
	Evicted []string
}

// AuthResult describes the caller behind a verified access token.
type AuthResult struct {
	UserID      string
	Role        string
	TeamID      string
	SessionID   string
	TokenID     string
	Permissions []string
	ExpiresAt   time.Time
	Session     *Session
}

// LoginRequest is the validated input of Authenticate.
type LoginRequest struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=1024"`
}

// RegisterRequest is the validated input of Register.
type RegisterRequest struct {
	UserID   string `validate:"required,max=128"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
	Role     string `validate:"required,max=64"`
	TeamID   string `validate:"max=128"`
}

// SignUpRequest is the input of self-service SignUp, which assigns the role
// and team itself.
type SignUpRequest struct {
	UserID   string
	Email    string
	Password string
}

// ChangePasswordRequest is the validated input of ChangePassword.
// SessionID, when set, names the caller's session, which survives the
// change; every other session of the user is revoked.
type ChangePasswordRequest struct {
	UserID      string `validate:"required,max=128"`
	SessionID   string `validate:"max=128"`
	OldPassword string `validate:"required,max=1024"`
	NewPassword string `validate:"required,max=1024"`
}
