package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnreachable is returned when the request could not complete at the transport
	// level (DNS, connect, TLS, timeout, cancelled context).
	ErrUnreachable = errors.New("backend unreachable")
	// ErrRejected is matched by every [*StatusError].
	ErrRejected = errors.New("backend rejected request")
	// ErrMalformedResponse is returned when a 2xx reply does not carry the expected body.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// StatusError reports a non-2xx reply. Message is the backend's human-readable "error"
// (or "detail") field when present.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend %s: %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRejected
}

// Unauthorized reports whether the backend refused the credential (401 or 403).
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsUnauthorized reports whether err is a [*StatusError] with a 401 or 403 status.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Unauthorized()
}
