package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/backend"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/store"
	"github.com/google/uuid"
)

const refreshFlightKey = "refresh"

// Refresh trades the stored refresh credential for a new access credential and stores
// it. Callers arriving while an exchange is in flight join it and receive its outcome;
// at most one exchange runs at a time.
//
// The exchange is not retried. Any failure after the refresh credential is read clears
// both stored credentials and ends the session. The exchange runs detached from ctx and
// is bounded by Config.Refresh.Timeout; when ctx ends first the caller stops waiting
// with ctx.Err() and the exchange continues for the others.
//
// Failures are returned as [*RefreshError].
func (c *Client) Refresh(ctx context.Context) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// leader is written inside the flight func and read only after its result arrives.
	var leader bool
	ch := c.refreshGroup.DoChan(refreshFlightKey, func() (any, error) {
		leader = true
		return c.runRefreshFlight(context.WithoutCancel(ctx))
	})

	select {
	case r := <-ch:
		if r.Shared && !leader {
			c.metrics.Inc(MetricRefreshCoalesced)
		}
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) runRefreshFlight(ctx context.Context) (string, error) {
	seq := c.flightSeq.Add(1)
	flightID := uuid.NewString()
	start := c.epoch.Load()
	log := c.logger.With().Str("flight_id", flightID).Logger()
	log.Debug().Msg("goSession: refresh started")

	deps := c.flows.Refresh
	deps.Commit = func(ctx context.Context, access string) error {
		return c.commitAccess(ctx, start, access)
	}
	var endedLive bool
	deps.Discard = func(ctx context.Context) error {
		var err error
		endedLive, err = c.discardSession(ctx, start)
		return err
	}

	res := flows.RunRefresh(ctx, deps)
	c.metrics.Observe(MetricRefreshLatency, res.Elapsed)

	if res.Failure == flows.RefreshFailureNone {
		c.metrics.Inc(MetricRefreshSuccess)
		c.emitAudit(ctx, auditEventRefreshSuccess, true, c.subject(), flightID, nil, nil)
		log.Debug().Dur("elapsed", res.Elapsed).Msg("goSession: refresh succeeded")
		return res.AccessToken, nil
	}

	rerr := &RefreshError{FlightID: flightID, TimedOut: res.TimedOut, flight: seq}
	switch res.Failure {
	case flows.RefreshFailureRead:
		rerr.Reason = RefreshStorage
		rerr.Cause = res.Err
		c.metrics.Inc(MetricStorageFailure)
		c.transitionIfCurrent(start, StatusUnauthenticated)
	case flows.RefreshFailureNoCredential:
		rerr.Reason = RefreshNoCredential
	case flows.RefreshFailureExchange:
		rerr.Reason = RefreshRejected
		rerr.Cause = res.Err
		if errors.Is(res.Err, backend.ErrUnreachable) {
			rerr.Cause = fmt.Errorf("%w: %w", ErrNetworkUnreachable, res.Err)
			c.setReachable(ctx, false, "refresh")
		}
	case flows.RefreshFailureCommit:
		rerr.Reason = RefreshStorage
		rerr.Cause = res.Err
		c.metrics.Inc(MetricStorageFailure)
	case flows.RefreshFailureSuperseded:
		rerr.Reason = RefreshSessionEnded
		rerr.Cause = res.Err
		c.metrics.Inc(MetricRefreshSuperseded)
		log.Info().Msg("goSession: refresh result discarded, session changed during exchange")
		return "", rerr
	}

	rerr.endedSession = endedLive
	if res.DiscardErr != nil {
		c.metrics.Inc(MetricStorageFailure)
		log.Error().Err(res.DiscardErr).Msg("goSession: could not clear credentials after failed refresh")
	}

	c.metrics.Inc(MetricRefreshFailure)
	c.emitAudit(ctx, auditEventRefreshFailure, false, "", flightID, rerr, map[string]string{
		"reason": rerr.Reason.String(),
	})
	log.Info().
		Str("reason", rerr.Reason.String()).
		Bool("timed_out", rerr.TimedOut).
		Err(rerr.Cause).
		Msg("goSession: refresh failed")
	return "", rerr
}

// commitAccess stores access unless the session changed since epoch.
func (c *Client) commitAccess(ctx context.Context, epoch uint64, access string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.epoch.Load() != epoch {
		return flows.ErrSuperseded
	}
	if err := c.store.Set(ctx, store.RoleAccess, access); err != nil {
		return err
	}
	c.setStatus(StatusAuthenticated)
	return nil
}

// discardSession clears both credentials and ends the session unless it changed since
// epoch. The status becomes Unauthenticated even when clearing fails. ended reports
// whether the session was still live, i.e. not already Unauthenticated.
func (c *Client) discardSession(ctx context.Context, epoch uint64) (ended bool, err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.epoch.Load() != epoch {
		return false, flows.ErrSuperseded
	}
	ended = c.Session().Status != StatusUnauthenticated
	err = c.store.ClearAll(ctx)
	c.setStatus(StatusUnauthenticated)
	return ended, err
}
