package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins, rejected or unreachable."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh exchanges that stored a new access credential."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh exchanges that ended the session."},
	{ID: goSession.MetricRefreshCoalesced, Name: "gosession_refresh_coalesced_total", Help: "Refresh callers that shared an exchange."},
	{ID: goSession.MetricRefreshSuperseded, Name: "gosession_refresh_superseded_total", Help: "Refresh results discarded after a logout or new login."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Session-expired side effects run by the request authorizer."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts that cleared stored credentials."},
	{ID: goSession.MetricProbeSuccess, Name: "gosession_probe_success_total", Help: "Reachability probes that reported the server running."},
	{ID: goSession.MetricProbeFailure, Name: "gosession_probe_failure_total", Help: "Reachability probes that failed or reported another status."},
	{ID: goSession.MetricStorageFailure, Name: "gosession_storage_failure_total", Help: "Credential store reads or writes that failed."},
	{ID: goSession.MetricProfileFailure, Name: "gosession_profile_failure_total", Help: "Profile fetches that failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh exchange latency histogram."},
}

// HistogramBounds are the upper bounds in seconds, excluding +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
