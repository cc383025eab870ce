package middleware

import (
	"net/http"
	"time"
)

// RequireAuthenticated is the API form of [RouteGuard]: anything but an authenticated
// session is answered with 401, or 503 once the server has been unreachable for debounce.
func RequireAuthenticated(source SessionSource, debounce time.Duration) func(http.Handler) http.Handler {
	return RouteGuard(source, GuardOptions{
		Debounce: debounce,
		Render: func(w http.ResponseWriter, _ *http.Request, rendering Rendering) {
			if rendering == RenderReachabilityError {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		},
	})
}
