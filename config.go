package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/backend"
	"github.com/MrEthical07/goSession/jwt"
)

// Config is the complete client configuration. Start from [DefaultConfig].
type Config struct {
	Backend      BackendConfig
	Refresh      RefreshConfig
	Reachability ReachabilityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the authentication backend. Empty paths use the backend
// package defaults.
type BackendConfig struct {
	BaseURL     string
	LoginPath   string
	SignupPath  string
	RefreshPath string
	ProfilePath string
	StatusPath  string
	// RunningStatus is the only probe reply that means reachable.
	RunningStatus string
	// Timeout bounds login and profile calls.
	Timeout   time.Duration
	UserAgent string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the refresh coordinator.
type RefreshConfig struct {
	// Timeout bounds one exchange; hitting it counts as a rejection.
	Timeout time.Duration
	// Skew treats access credentials expiring within this window as expired. Zero
	// refreshes only at or after the exact expiry.
	Skew time.Duration
}

/*
====================================
REACHABILITY CONFIG
====================================
*/

// ReachabilityConfig controls the backend probe.
type ReachabilityConfig struct {
	// Debounce is how long the server must stay unreachable before a route guard shows
	// the reachability error instead of loading or a login redirect.
	Debounce     time.Duration
	PollInterval time.Duration
	ProbeTimeout time.Duration
	// ProbeOnBootstrap runs one probe at the end of Bootstrap.
	ProbeOnBootstrap bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration that talks to a local development backend.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000",
			LoginPath:     backend.DefaultLoginPath,
			SignupPath:    backend.DefaultSignupPath,
			RefreshPath:   backend.DefaultRefreshPath,
			ProfilePath:   backend.DefaultProfilePath,
			StatusPath:    backend.DefaultStatusPath,
			RunningStatus: backend.DefaultRunningStatus,
			Timeout:       10 * time.Second,
			UserAgent:     "goSession",
		},
		Refresh: RefreshConfig{
			Timeout: 10 * time.Second,
		},
		Reachability: ReachabilityConfig{
			Debounce:         3 * time.Second,
			PollInterval:     30 * time.Second,
			ProbeTimeout:     5 * time.Second,
			ProbeOnBootstrap: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Backend
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("Backend BaseURL is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("Backend BaseURL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Backend BaseURL must use http or https")
	}
	if u.Host == "" {
		return errors.New("Backend BaseURL must include a host")
	}
	for name, p := range map[string]string{
		"LoginPath":   c.Backend.LoginPath,
		"SignupPath":  c.Backend.SignupPath,
		"RefreshPath": c.Backend.RefreshPath,
		"ProfilePath": c.Backend.ProfilePath,
		"StatusPath":  c.Backend.StatusPath,
	} {
		if p != "" && !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Backend %s must start with /", name)
		}
	}
	if c.Backend.RunningStatus == "" {
		return errors.New("Backend RunningStatus must not be empty")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.Skew < 0 {
		return errors.New("Refresh Skew must be >= 0")
	}
	if c.Refresh.Skew > jwt.MaxSkew {
		return fmt.Errorf("Refresh Skew must be <= %s", jwt.MaxSkew)
	}

	// Reachability
	if c.Reachability.Debounce < 0 {
		return errors.New("Reachability Debounce must be >= 0")
	}
	if c.Reachability.PollInterval <= 0 {
		return errors.New("Reachability PollInterval must be > 0")
	}
	if c.Reachability.ProbeTimeout <= 0 {
		return errors.New("Reachability ProbeTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
