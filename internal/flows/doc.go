// Package flows contains pure-function orchestrators for the session operations.
//
// Each flow function (RunRefresh, RunLogin, RunBootstrap, RunLogout) accepts a typed
// dependency struct and returns a result without side effects beyond those
// dependencies. The client supplies closures that own locking, state transitions and
// persistence; flows only decide the order of calls and how failures are classified.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
