package goSession

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventSignupSuccess       = "signup_success"
	auditEventSignupFailure       = "signup_failure"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshFailure      = "refresh_failure"
	auditEventLogout              = "logout"
	auditEventSessionExpired      = "session_expired"
	auditEventReachabilityChanged = "reachability_changed"
)

// Session-ending events wait for buffer space even when Config.Audit.DropIfFull is set.
var criticalAuditEvents = []string{auditEventLogout, auditEventSessionExpired}

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrLoginRejected      AuditErrorCode = "login_rejected"
	auditErrSignupRejected     AuditErrorCode = "signup_rejected"
	auditErrStorage            AuditErrorCode = "storage_unavailable"
	auditErrNoRefreshCred      AuditErrorCode = "no_refresh_credential"
	auditErrSessionEnded       AuditErrorCode = "session_ended"
	auditErrNetworkUnreachable AuditErrorCode = "network_unreachable"
	auditErrRefreshRejected    AuditErrorCode = "refresh_rejected"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	flightID string,
	err error,
	metadata map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	event := AuditEvent{
		EventType: eventType,
		Subject:   subject,
		FlightID:  flightID,
		Status:    c.Session().Status.String(),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrLoginRejected):
		return auditErrLoginRejected
	case errors.Is(err, ErrSignupRejected):
		return auditErrSignupRejected
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrStorage
	case errors.Is(err, ErrNoRefreshCredential):
		return auditErrNoRefreshCred
	case errors.Is(err, ErrSessionEnded):
		return auditErrSessionEnded
	case errors.Is(err, ErrNetworkUnreachable):
		return auditErrNetworkUnreachable
	case errors.Is(err, ErrRefreshRejected):
		return auditErrRefreshRejected
	default:
		return auditErrInternal
	}
}
