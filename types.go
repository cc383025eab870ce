package goSession

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/rs/zerolog"
)

// Status is the authentication state of a session.
type Status uint8

const (
	// StatusUnknown is the initial state, before [Client.Bootstrap] resolves.
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of the client state. It is a value; later changes are not
// reflected in it.
type Session struct {
	Status Status `json:"status"`
	// ServerReachable starts true and becomes false when a probe fails or a backend call
	// fails at the transport level. It never changes Status.
	ServerReachable bool `json:"server_reachable"`
	// UnreachableSince is when ServerReachable last became false. Zero while reachable.
	UnreachableSince time.Time `json:"unreachable_since,omitzero"`
	// Profile is set only while Status is StatusAuthenticated and a profile is known.
	Profile *Profile `json:"profile,omitempty"`
}

// Profile is the user-identifying data returned by the backend after authentication.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	ID       int64  `json:"id"`
}

// AuditEvent is a session lifecycle record emitted by the client.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the client's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink is an [AuditSink] that writes events through a zerolog logger.
type LogSink = internalaudit.LogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink creates a [LogSink].
func NewLogSink(logger zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}

// MetricID identifies a counter or histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess      = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure      = MetricID(internalmetrics.MetricLoginFailure)
	MetricRefreshSuccess    = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure    = MetricID(internalmetrics.MetricRefreshFailure)
	MetricRefreshCoalesced  = MetricID(internalmetrics.MetricRefreshCoalesced)
	MetricRefreshSuperseded = MetricID(internalmetrics.MetricRefreshSuperseded)
	MetricSessionExpired    = MetricID(internalmetrics.MetricSessionExpired)
	MetricLogout            = MetricID(internalmetrics.MetricLogout)
	MetricProbeSuccess      = MetricID(internalmetrics.MetricProbeSuccess)
	MetricProbeFailure      = MetricID(internalmetrics.MetricProbeFailure)
	MetricStorageFailure    = MetricID(internalmetrics.MetricStorageFailure)
	MetricProfileFailure    = MetricID(internalmetrics.MetricProfileFailure)
	MetricRefreshLatency    = MetricID(internalmetrics.MetricRefreshLatency)
)

// Metrics holds atomic counters and the refresh latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false all operations are
// no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
