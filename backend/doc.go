// Package backend is the HTTP transport to the authentication backend: login, refresh
// exchange, profile fetch, and the reachability probe.
//
// Every call carries a fresh X-Request-ID and is traced through otelhttp. Transport
// failures are reported as [ErrUnreachable]; non-2xx replies as [*StatusError].
//
// # What this package must NOT do
//
//   - Persist credentials or decide session status.
//   - Retry: callers own retry policy.
//   - Attach credentials on its own; the caller passes the Authorization value explicitly.
package backend
