// Package middleware adapts goGuard.Engine to net/http.
//
// # Handlers
//
//   - [RateLimit] charges each request against the rate limiting and abuse
//     engine and answers 429 or 403 with Retry-After.
//   - [Authenticate] verifies the bearer access token and stores the
//     [goGuard.AuthResult] in the request context.
//   - [UserRateLimit] charges the per-user rules once the caller is known.
//   - [CSRF] validates the synchronizer token on state-changing requests.
//   - [RequirePermission] evaluates one RBAC permission for the caller.
//   - [ClientInfo] only records client metadata, for public endpoints.
//   - [Chain] composes them outermost first. A protected route is
//     RateLimit, Authenticate, UserRateLimit, then CSRF and
//     RequirePermission.
//
// Every handler fills the client IP, User-Agent and Accept-Language into
// the request context so the engine can key limits, fingerprint sessions
// and stamp audit events.
//
// This package translates HTTP into Engine calls and Engine errors into
// status codes. It holds no security state of its own.
package middleware
