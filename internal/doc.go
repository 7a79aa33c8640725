// Package internal contains helpers private to goGuard: secure random
// identifiers and device fingerprints.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for the Engine operations
//   - security: posture report derived from the engine configuration
//   - sweep: background expiry janitor
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
