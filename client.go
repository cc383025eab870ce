package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/backend"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Client is the session state machine. All methods are safe for concurrent use.
//
// Status is written only by Client operations. Store writes are serialized by an
// internal lock and tagged with a session epoch, so a refresh that completes after a
// logout or a new login cannot resurrect or overwrite the newer session.
type Client struct {
	cfg       Config
	store     store.Store
	backend   *backend.Client
	evaluator *jwt.Evaluator
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *Metrics
	audit     *internalaudit.Dispatcher
	onExpired func(context.Context)
	profile   *ProfileHolder
	flows     flows.Deps

	// mu guards the fields below and subscriber delivery.
	mu               sync.Mutex
	status           Status
	reachable        bool
	unreachableSince time.Time
	subs             map[uint64]*subscriber
	nextSub          uint64

	// writeMu serializes store writes with epoch checks.
	writeMu sync.Mutex
	epoch   atomic.Uint64

	refreshGroup  singleflight.Group
	flightSeq     atomic.Uint64
	expiredFlight atomic.Uint64

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	pollers   sync.WaitGroup
}

type clientDeps struct {
	cfg        Config
	store      store.Store
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
	auditSink  AuditSink
	onExpired  func(context.Context)
}

type subscriber struct {
	ch   chan Session
	once sync.Once
}

func newClient(d clientDeps) (*Client, error) {
	bc, err := backend.New(backend.Config{
		BaseURL:     d.cfg.Backend.BaseURL,
		LoginPath:   d.cfg.Backend.LoginPath,
		SignupPath:  d.cfg.Backend.SignupPath,
		RefreshPath: d.cfg.Backend.RefreshPath,
		ProfilePath: d.cfg.Backend.ProfilePath,
		StatusPath:  d.cfg.Backend.StatusPath,
		Timeout:     d.cfg.Backend.Timeout,
		HTTPClient:  d.httpClient,
		UserAgent:   d.cfg.Backend.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	ev, err := jwt.NewEvaluator(jwt.Config{Now: d.now, Skew: d.cfg.Refresh.Skew})
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       d.cfg,
		store:     d.store,
		backend:   bc,
		evaluator: ev,
		now:       d.now,
		logger:    d.logger,
		metrics:   NewMetrics(d.cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    d.cfg.Audit.Enabled,
			BufferSize: d.cfg.Audit.BufferSize,
			DropIfFull: d.cfg.Audit.DropIfFull,
			Critical:   criticalAuditEvents,
		}, d.auditSink, d.now),
		onExpired: d.onExpired,
		profile:   &ProfileHolder{},
		status:    StatusUnknown,
		reachable: true,
		subs:      make(map[uint64]*subscriber),
		done:      make(chan struct{}),
	}
	c.flows = c.buildFlows()
	return c, nil
}

func (c *Client) buildFlows() flows.Deps {
	return flows.Deps{
		Refresh: flows.RefreshDeps{
			ReadRefresh: func(ctx context.Context) (string, bool, error) {
				return c.store.Get(ctx, store.RoleRefresh)
			},
			Exchange: c.backend.RefreshAccess,
			Timeout:  c.cfg.Refresh.Timeout,
			Now:      c.now,
		},
		Login: flows.LoginDeps{
			Authenticate: c.authenticate,
			Commit:       c.commitLogin,
			Discard: func(ctx context.Context) error {
				c.writeMu.Lock()
				defer c.writeMu.Unlock()
				c.epoch.Add(1)
				c.setStatus(StatusUnauthenticated)
				return c.store.ClearAll(ctx)
			},
		},
		Bootstrap: flows.BootstrapDeps{
			ReadAccess: func(ctx context.Context) (string, bool, error) {
				return c.store.Get(ctx, store.RoleAccess)
			},
			NeedsRefresh: func(access string) bool {
				return c.evaluator.Classify(access).NeedsRefresh()
			},
			Refresh: func(ctx context.Context) error {
				_, err := c.Refresh(ctx)
				return err
			},
		},
		Logout: flows.LogoutDeps{
			Ended: func() bool {
				return c.Session().Status == StatusUnauthenticated
			},
			Stored:   c.hasStoredCredentials,
			ClearAll: c.store.ClearAll,
		},
	}
}

func (c *Client) ready() error {
	if c == nil || c.closed.Load() {
		return ErrClientNotReady
	}
	return nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Store returns the credential store.
func (c *Client) Store() store.Store {
	return c.store
}

// Evaluator returns the expiry evaluator bound to the client clock and skew.
func (c *Client) Evaluator() *jwt.Evaluator {
	return c.evaluator
}

// Backend returns the backend transport.
func (c *Client) Backend() *backend.Client {
	return c.backend
}

// MetricsSnapshot returns a copy of the in-process metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events dropped because the buffer was full.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// AuditDroppedByType breaks [Client.AuditDropped] down by event type.
func (c *Client) AuditDroppedByType() map[string]uint64 {
	return c.audit.DroppedByType()
}

// Session returns a snapshot of the current state.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Session {
	s := Session{
		Status:           c.status,
		ServerReachable:  c.reachable,
		UnreachableSince: c.unreachableSince,
	}
	if c.status == StatusAuthenticated {
		if p, ok := c.profile.Get(); ok {
			s.Profile = &p
		}
	}
	return s
}

// Subscribe returns a channel that receives the current snapshot and then a new
// snapshot after every change. A slow subscriber only ever misses intermediate states;
// the latest one is always delivered. The cancel func closes the channel.
func (c *Client) Subscribe(buffer int) (<-chan Session, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Session, buffer)}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	sub.deliver(c.snapshotLocked())
	c.mu.Unlock()

	return sub.ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		sub.close()
	}
}

func (s *subscriber) deliver(snap Session) {
	select {
	case s.ch <- snap:
		return
	default:
	}
	// Full: replace the oldest pending snapshot.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// update applies fn under the state lock and notifies subscribers if the snapshot
// changed.
func (c *Client) update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.snapshotLocked()
	fn()
	after := c.snapshotLocked()
	if sameSession(before, after) {
		return
	}
	for _, sub := range c.subs {
		sub.deliver(after)
	}
}

func sameSession(a, b Session) bool {
	if a.Status != b.Status || a.ServerReachable != b.ServerReachable || !a.UnreachableSince.Equal(b.UnreachableSince) {
		return false
	}
	if (a.Profile == nil) != (b.Profile == nil) {
		return false
	}
	return a.Profile == nil || *a.Profile == *b.Profile
}

func (c *Client) setStatus(s Status) {
	c.update(func() {
		if c.status != s {
			c.logger.Debug().Str("from", c.status.String()).Str("status", s.String()).Msg("goSession: status changed")
		}
		c.status = s
		if s != StatusAuthenticated {
			c.profile.clear()
		}
	})
}

// transitionIfCurrent sets s only when no login or logout happened since epoch.
func (c *Client) transitionIfCurrent(epoch uint64, s Status) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.epoch.Load() != epoch {
		return false
	}
	c.setStatus(s)
	return true
}

func (c *Client) hasStoredCredentials(ctx context.Context) (bool, error) {
	for _, role := range store.Roles {
		_, ok, err := c.store.Get(ctx, role)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Bootstrap resolves the initial state from the store. With no access credential the
// session becomes Unauthenticated without contacting the refresh endpoint. A valid one
// authenticates and loads the profile; an expired or malformed one is refreshed first.
// One reachability probe runs afterwards when configured.
//
// Only a storage failure is returned as an error; the session is then Unauthenticated.
func (c *Client) Bootstrap(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}

	start := c.epoch.Load()
	res := flows.RunBootstrap(ctx, c.flows.Bootstrap)

	var err error
	switch res.Outcome {
	case flows.BootstrapNoCredential:
		c.transitionIfCurrent(start, StatusUnauthenticated)
	case flows.BootstrapValid:
		if c.transitionIfCurrent(start, StatusAuthenticated) {
			c.loadProfile(ctx)
		}
	case flows.BootstrapRefreshed:
		c.loadProfile(ctx)
	case flows.BootstrapRefreshFailed:
		var rerr *RefreshError
		switch {
		case errors.As(res.Err, &rerr):
			if rerr.Reason == RefreshStorage {
				err = fmt.Errorf("goSession: bootstrap: %w", res.Err)
			}
		default:
			// The caller stopped waiting; the shared exchange settles the state.
			err = res.Err
		}
	case flows.BootstrapStorageFailure:
		c.metrics.Inc(MetricStorageFailure)
		c.transitionIfCurrent(start, StatusUnauthenticated)
		err = fmt.Errorf("goSession: bootstrap: %w", res.Err)
	}

	c.logger.Info().
		Str("outcome", res.Outcome.String()).
		Str("status", c.Session().Status.String()).
		Msg("goSession: bootstrap complete")

	if c.cfg.Reachability.ProbeOnBootstrap {
		c.Probe(ctx)
	}
	return err
}

// Login exchanges username and password for a credential pair, stores both and
// authenticates. A backend refusal returns a [*LoginError] carrying the backend's
// message; a transport failure returns an error matching [ErrNetworkUnreachable].
// Neither ends an existing authenticated session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if err := c.ready(); err != nil {
		return err
	}

	res := flows.RunLogin(ctx, username, password, c.flows.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
		c.metrics.Inc(MetricLoginSuccess)
		c.emitAudit(ctx, auditEventLoginSuccess, true, username, "", nil, nil)
		c.logger.Info().Str("subject", username).Msg("goSession: login succeeded")
		if res.Grant.Username == "" {
			c.loadProfile(ctx)
		}
		return nil

	case flows.LoginFailureCommit:
		c.metrics.Inc(MetricLoginFailure)
		c.metrics.Inc(MetricStorageFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, username, "", res.Err, nil)
		c.logger.Error().Err(res.Err).Msg("goSession: login could not persist credentials")
		return fmt.Errorf("goSession: login: %w", res.Err)

	default:
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, username, "", res.Err, nil)
		c.logger.Info().Err(res.Err).Str("subject", username).Msg("goSession: login failed")
		c.update(func() {
			if c.status == StatusUnknown {
				c.status = StatusUnauthenticated
			}
		})
		return res.Err
	}
}

func (c *Client) authenticate(ctx context.Context, username, password string) (flows.LoginGrant, error) {
	resp, err := c.backend.Login(ctx, username, password)
	if err != nil {
		var se *backend.StatusError
		switch {
		case errors.As(err, &se):
			return flows.LoginGrant{}, &LoginError{StatusCode: se.StatusCode, Message: se.Message}
		case errors.Is(err, backend.ErrUnreachable):
			c.setReachable(ctx, false, "login")
			return flows.LoginGrant{}, fmt.Errorf("goSession: login: %w: %w", ErrNetworkUnreachable, err)
		default:
			return flows.LoginGrant{}, fmt.Errorf("goSession: login: %w", err)
		}
	}
	return flows.LoginGrant{
		Access:   resp.Access,
		Refresh:  resp.Refresh,
		Username: resp.Username,
		Email:    resp.Email,
		ID:       resp.ID,
	}, nil
}

func (c *Client) commitLogin(ctx context.Context, g flows.LoginGrant) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.epoch.Add(1)
	if err := c.store.Set(ctx, store.RoleAccess, g.Access); err != nil {
		return err
	}
	if err := c.store.Set(ctx, store.RoleRefresh, g.Refresh); err != nil {
		return err
	}

	c.update(func() {
		c.status = StatusAuthenticated
		if g.Username != "" {
			c.profile.set(Profile{Username: g.Username, Email: g.Email, ID: g.ID})
		} else {
			c.profile.clear()
		}
	})
	return nil
}

// Logout clears both credentials and the profile and ends the session. Calling it when
// the session is already Unauthenticated with nothing stored does nothing. A refresh
// still in flight is discarded when it completes.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.logout(ctx, "")
}

func (c *Client) logout(ctx context.Context, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	subject := c.subject()
	c.epoch.Add(1)
	res := flows.RunLogout(ctx, c.flows.Logout)
	c.setStatus(StatusUnauthenticated)

	if !res.Cleared {
		return nil
	}

	var meta map[string]string
	if reason != "" {
		meta = map[string]string{"reason": reason}
	}
	c.metrics.Inc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, res.Err == nil, subject, "", res.Err, meta)

	if res.Err != nil {
		c.metrics.Inc(MetricStorageFailure)
		c.logger.Error().Err(res.Err).Msg("goSession: logout could not clear credentials")
		return fmt.Errorf("goSession: logout: %w", res.Err)
	}
	c.logger.Info().Str("reason", reason).Msg("goSession: logged out")
	return nil
}

func (c *Client) subject() string {
	if p, ok := c.profile.Get(); ok {
		return p.Username
	}
	return ""
}

// Close stops pollers, flushes audit events and closes subscriber channels. The client
// rejects further calls with [ErrClientNotReady].
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.pollers.Wait()
		c.audit.Close()

		c.mu.Lock()
		for id, sub := range c.subs {
			delete(c.subs, id)
			sub.close()
		}
		c.mu.Unlock()
	})
}
