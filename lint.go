package goSession

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", uint8(s))
	}
}

// LintWarning describes a configuration that is valid but likely unintended.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	var errs []error
	for _, w := range r.BySeverity(min) {
		errs = append(errs, fmt.Errorf("%s [%s]: %s", w.Code, w.Severity, w.Message))
	}
	return errors.Join(errs...)
}

// Lint reports valid-but-risky settings. It never fails; call Validate for errors.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if u, err := url.Parse(c.Backend.BaseURL); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		add("insecure_backend", LintHigh, "credentials travel over plain http to a non-loopback host")
	}
	if c.Refresh.Timeout > 30*time.Second {
		add("refresh_timeout_long", LintWarn, "requests wait this long behind a stuck refresh")
	}
	if c.Refresh.Skew > time.Minute {
		add("skew_large", LintInfo, "access credentials are refreshed more than a minute early")
	}
	if c.Reachability.Debounce == 0 {
		add("debounce_zero", LintWarn, "a single failed probe immediately shows the unreachable screen")
	}
	if c.Reachability.PollInterval > 0 && c.Reachability.PollInterval < 5*time.Second {
		add("poll_interval_short", LintInfo, "reachability polling more often than every 5s")
	}
	if c.Reachability.ProbeTimeout >= c.Reachability.PollInterval && c.Reachability.PollInterval > 0 {
		add("probe_timeout_exceeds_interval", LintWarn, "probes can overlap the next poll tick")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "session transitions are not audited")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintWarn, "a slow audit sink blocks login, logout and refresh")
	}
	return ws
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
