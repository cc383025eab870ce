// Package middleware exposes HTTP adapters over a goSession.Client.
//
// # Inbound
//
//   - [Decide] maps a session snapshot to a [Rendering]; it is pure.
//   - [RouteGuard] gates page routes: content, loading page, login redirect or 503.
//   - [RequireAuthenticated] gates API routes with 401/503.
//
// Guards read snapshots only. They never refresh, probe or touch the store.
//
// # Outbound
//
// [Transport] and [NewHTTPClient] attach the bearer credential from
// Client.AuthorizationHeader to outgoing requests, refreshing first when the stored
// credential is expired or malformed.
package middleware
