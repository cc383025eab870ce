package goSession

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goSession/store"
)

var (
	// ErrStorageUnavailable is returned when the credential store cannot be read or
	// written. It is the same value as [store.ErrStorageUnavailable].
	ErrStorageUnavailable = store.ErrStorageUnavailable
	// ErrNoRefreshCredential is matched by a refresh that found no refresh credential.
	ErrNoRefreshCredential = errors.New("no refresh credential")
	// ErrRefreshRejected is matched by a refresh whose exchange failed for any reason.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrNetworkUnreachable is matched when a backend call failed at the transport level.
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrLoginRejected is matched by [*LoginError].
	ErrLoginRejected = errors.New("login rejected")
	// ErrSignupRejected is matched by [*SignupError].
	ErrSignupRejected = errors.New("signup rejected")
	// ErrNotAuthenticated is returned by calls that need a stored access credential.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrClientNotReady is returned by methods of a nil or closed [Client].
	ErrClientNotReady = errors.New("client not ready")
	// ErrSessionEnded is matched by a refresh whose result was discarded because the
	// session it started for was logged out or replaced.
	ErrSessionEnded = errors.New("session ended during refresh")
)

// RefreshReason classifies a failed refresh.
type RefreshReason uint8

const (
	RefreshNoCredential RefreshReason = iota + 1
	RefreshRejected
	RefreshStorage
	RefreshSessionEnded
)

func (r RefreshReason) String() string {
	switch r {
	case RefreshNoCredential:
		return "no_refresh_credential"
	case RefreshRejected:
		return "refresh_rejected"
	case RefreshStorage:
		return "storage_unavailable"
	case RefreshSessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}

// RefreshError is returned by [Client.Refresh]. Every caller that joined the same
// exchange receives the same *RefreshError.
type RefreshError struct {
	Reason RefreshReason
	// FlightID identifies the exchange in logs and audit events.
	FlightID string
	// TimedOut is set when the exchange exceeded Config.Refresh.Timeout.
	TimedOut bool
	Cause    error

	flight uint64
	// endedSession is set when this exchange moved a live session to Unauthenticated.
	endedSession bool
}

func (e *RefreshError) Error() string {
	if e.Cause == nil {
		return "goSession: refresh failed: " + e.Reason.String()
	}
	return fmt.Sprintf("goSession: refresh failed: %s: %v", e.Reason, e.Cause)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

func (e *RefreshError) Is(target error) bool {
	switch target {
	case ErrNoRefreshCredential:
		return e.Reason == RefreshNoCredential
	case ErrRefreshRejected:
		return e.Reason == RefreshRejected
	case ErrSessionEnded:
		return e.Reason == RefreshSessionEnded
	case ErrStorageUnavailable:
		return e.Reason == RefreshStorage
	}
	return false
}

// LoginError reports a login the backend refused. Message is the backend's
// human-readable error text, suitable for showing next to the form.
type LoginError struct {
	StatusCode int
	Message    string
}

func (e *LoginError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("login rejected: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *LoginError) Is(target error) bool {
	return target == ErrLoginRejected
}

// SignupError reports an account creation the backend refused, such as a taken
// username. Message is the backend's error text.
type SignupError struct {
	StatusCode int
	Message    string
}

func (e *SignupError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("signup rejected: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *SignupError) Is(target error) bool {
	return target == ErrSignupRejected
}
