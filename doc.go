// Package goSession manages the client side of a token-based session: a short-lived
// access credential, a long-lived refresh credential, and the authentication state
// derived from them.
//
// A [Client] is built once through [New] and [Builder.Build] and is safe to call from
// multiple goroutines. It owns the session state machine (Unknown, Authenticated,
// Unauthenticated), a reachability flag maintained by probing the backend, and a
// refresh coordinator that guarantees at most one refresh exchange is in flight.
//
// # Architecture boundaries
//
// goSession is the public surface. Credential persistence lives in store, claim
// decoding in jwt, HTTP calls in backend, and route gating plus the authorizing
// transport in middleware. Flow orchestration, audit dispatch and metric storage live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Verify credential signatures; that is the backend's job.
//   - Attach a credential that is expired or malformed by the evaluator's clock.
//   - Log or audit credential values.
//   - Import middleware or any package that re-imports goSession.
package goSession
