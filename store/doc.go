// Package store provides durable key/value persistence for the access and refresh
// credentials of a client session.
//
// # Keys
//
// Exactly two well-known keys exist: [RoleAccess] ("accessToken") and [RoleRefresh]
// ("refreshToken"). Absence of either value is a valid state, not an error.
//
// # Backends
//
//   - [Memory] keeps values in process memory (tests, ephemeral clients).
//   - [File] persists values to a YAML document with 0600 permissions.
//   - [Redis] persists values under a namespaced Redis key.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT decode tokens, judge expiry, or decide
// session status; those responsibilities belong to jwt and the root client.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or backend (no upward imports).
//   - Swallow backend failures: every failure is returned wrapped in [ErrStorageUnavailable].
//   - Log credential values.
package store
