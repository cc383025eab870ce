package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

// Rendering is what a guarded route shows for a session snapshot.
type Rendering uint8

const (
	RenderLoading Rendering = iota
	RenderContent
	RenderRedirectToLogin
	RenderReachabilityError
)

func (r Rendering) String() string {
	switch r {
	case RenderLoading:
		return "loading"
	case RenderContent:
		return "content"
	case RenderRedirectToLogin:
		return "redirect_to_login"
	case RenderReachabilityError:
		return "reachability_error"
	default:
		return "unknown"
	}
}

// Decide maps a snapshot to a rendering. It is deterministic and performs no I/O.
//
// The reachability error wins only for a session that is not authenticated and whose
// server has been unreachable for at least debounce, so one failed probe on page load
// does not flash an error.
func Decide(s goSession.Session, now time.Time, debounce time.Duration) Rendering {
	if s.Status != goSession.StatusAuthenticated && !s.ServerReachable && unreachableFor(s, now) >= debounce {
		return RenderReachabilityError
	}
	switch s.Status {
	case goSession.StatusUnknown:
		return RenderLoading
	case goSession.StatusAuthenticated:
		return RenderContent
	default:
		return RenderRedirectToLogin
	}
}

func unreachableFor(s goSession.Session, now time.Time) time.Duration {
	if s.UnreachableSince.IsZero() {
		return 0
	}
	return now.Sub(s.UnreachableSince)
}

// SessionSource supplies snapshots. [*goSession.Client] implements it.
type SessionSource interface {
	Session() goSession.Session
}

// GuardOptions configures [RouteGuard]. Zero values are valid.
type GuardOptions struct {
	// LoginPath is the redirect target for unauthenticated sessions. Defaults to "/login".
	LoginPath string
	// Debounce is passed to [Decide].
	Debounce time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// RetryAfter is sent with the loading page. Defaults to one second.
	RetryAfter time.Duration
	// Render replaces the built-in loading, redirect and reachability responses.
	Render func(w http.ResponseWriter, r *http.Request, rendering Rendering)
}

type sessionContextKey struct{}

// SessionFromContext returns the snapshot a guard admitted the request with.
func SessionFromContext(ctx context.Context) (goSession.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(goSession.Session)
	return s, ok
}

// RouteGuard gates next on the current session. Authenticated requests reach next with
// the snapshot in their context; others get a loading page, a redirect to the login
// route, or a 503 when the server is unreachable.
func RouteGuard(source SessionSource, opts GuardOptions) func(http.Handler) http.Handler {
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			s := source.Session()
			rendering := Decide(s, opts.Now(), opts.Debounce)
			if rendering == RenderContent {
				ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if opts.Render != nil {
				opts.Render(w, r, rendering)
				return
			}
			renderDefault(w, r, rendering, opts)
		})
	}
}

func renderDefault(w http.ResponseWriter, r *http.Request, rendering Rendering, opts GuardOptions) {
	w.Header().Set("Cache-Control", "no-store")
	switch rendering {
	case RenderLoading:
		secs := int(opts.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writePage(w, http.StatusOK, "Loading...")
	case RenderReachabilityError:
		writePage(w, http.StatusServiceUnavailable, "The server is unreachable. Please try again later.")
	default:
		http.Redirect(w, r, opts.LoginPath, http.StatusFound)
	}
}

func writePage(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte("<!doctype html><html><body><p>" + msg + "</p></body></html>"))
}
