package goSession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/rs/zerolog"
)

// Builder assembles a [Client]. A Builder is single-use.
type Builder struct {
	config     Config
	store      store.Store
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
	auditSink  AuditSink
	onExpired  func(context.Context)

	built bool
}

// New returns a Builder seeded with [DefaultConfig] and a disabled logger.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithHTTPClient sets the client used for backend calls. Its transport is wrapped for
// tracing; the caller's client is not modified.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithLogger sets the structured logger. Credentials are never logged.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for expiry evaluation, reachability timestamps and audit
// events.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithOnSessionExpired sets the side effect run when an outbound request finds that
// the session can no longer be refreshed, typically a redirect to the login route. It
// runs at most once per failed refresh exchange.
func (b *Builder) WithOnSessionExpired(fn func(context.Context)) *Builder {
	b.onExpired = fn
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns a ready [Client] in StatusUnknown.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	c, err := newClient(clientDeps{
		cfg:        cfg,
		store:      b.store,
		httpClient: b.httpClient,
		logger:     b.logger,
		now:        now,
		auditSink:  b.auditSink,
		onExpired:  b.onExpired,
	})
	if err != nil {
		return nil, err
	}

	b.built = true
	return c, nil
}
