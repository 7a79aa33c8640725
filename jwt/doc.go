// Package jwt issues and verifies HS256 access/refresh token pairs.
//
// Access and refresh tokens use distinct secrets. Verification pins the
// algorithm, requires exp and iat, and checks issuer, audience and
// not-before. Blacklisting and session binding are the caller's job.
package jwt
