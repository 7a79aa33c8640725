// Package flows contains pure-function orchestrators for the Engine's
// credential operations.
//
// Each flow function (RunLogin, RunValidate, RunRefresh, RunLogout, etc.)
// accepts a typed dependency struct and returns a result carrying either the
// payload or a classified failure. The root package maps failure kinds to its
// public errors, metrics and audit events, so the flows stay free of those
// concerns and can be tested with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, password pool,
// token manager, blacklist and session manager. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
