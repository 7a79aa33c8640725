// Package goGuard is the security gateway core: credential checks, signed
// access and refresh tokens, server-side sessions, rate limiting with abuse
// mitigation, role based access control and CSRF protection.
//
// An [Engine] is assembled by a [Builder] and is safe to call from many
// goroutines. Every backend it needs (credential store, Redis, audit sink,
// RBAC policy, risk policy, clock) is injected; nothing is global.
//
// # Request path
//
//   - Authenticate applies the login rate limit, checks the password with
//     argon2id and opens a session bound to a fresh token pair.
//   - Verify and Authorize check an access token, its blacklist entry and its
//     session, then evaluate the compiled RBAC table.
//   - Refresh consumes the refresh token exactly once. A replayed token ends
//     every session of its user.
//   - IssueCSRFToken and ValidateCSRFToken implement one-time synchronizer
//     tokens bound to a session.
//
// # Background work
//
// Expired state is never removed inline. Run [Engine.RunSweeper] in its own
// goroutine, or call [Engine.SweepNow] from a scheduler.
//
// # What this package must NOT do
//
//   - Log or audit raw tokens, passwords or hashes.
//   - Distinguish "no such user" from "wrong password" to callers.
//   - Block the request path on audit delivery.
package goGuard
