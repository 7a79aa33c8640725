package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const (
	sessionIDSize = 16
	tokenSize     = 32
)

// NewSessionID returns 128 random bits, base64url without padding.
func NewSessionID() (string, error) {
	return randomString(sessionIDSize)
}

// NewToken returns 256 random bits, base64url without padding. Used for
// CSRF synchronizer tokens.
func NewToken() (string, error) {
	return randomString(tokenSize)
}

// ValidSessionID reports whether s has the shape NewSessionID produces.
func ValidSessionID(s string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == sessionIDSize
}

// EqualConstantTime compares two strings without leaking the position of the
// first difference.
func EqualConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random size")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
