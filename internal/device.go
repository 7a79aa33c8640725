package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint hashes the client hints that identify a device. Empty input
// yields an empty fingerprint so callers can tell "unknown" from a match.
func Fingerprint(userAgent, acceptLanguage string) string {
	if userAgent == "" && acceptLanguage == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userAgent + "\x00" + acceptLanguage))
	return hex.EncodeToString(sum[:16])
}
