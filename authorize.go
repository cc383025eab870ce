package goSession

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
)

// AuthorizationHeader returns the Authorization header value for an outbound request,
// or "" when the request must go out without a credential.
//
// With no stored access credential it returns ("", nil). A valid credential is
// returned as a bearer value. An expired or malformed one is replaced through
// [Client.Refresh] first; when that fails it returns ("", err) with the
// [*RefreshError]. The session-expired side effect runs once, and only for the
// exchange that ended a live session; a storage failure never runs it. A store
// read failure returns an error matching [ErrStorageUnavailable].
func (c *Client) AuthorizationHeader(ctx context.Context) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	access, ok, err := c.store.Get(ctx, store.RoleAccess)
	if err != nil {
		c.metrics.Inc(MetricStorageFailure)
		return "", fmt.Errorf("goSession: authorize: %w", err)
	}
	if !ok || access == "" {
		return "", nil
	}

	if c.evaluator.Classify(access) == jwt.Valid {
		return bearer(access), nil
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		var rerr *RefreshError
		if errors.As(err, &rerr) && rerr.endedSession && rerr.Reason != RefreshStorage {
			c.sessionExpired(ctx, rerr)
		}
		return "", err
	}

	// A replacement that is already stale by our clock is not attached either.
	if class := c.evaluator.Classify(fresh); class != jwt.Valid {
		c.logger.Warn().Str("class", class.String()).Msg("goSession: refreshed credential is not valid by the local clock")
		return "", fmt.Errorf("goSession: authorize: refreshed credential is %s: %w", class, ErrRefreshRejected)
	}
	return bearer(fresh), nil
}

func bearer(token string) string {
	return "Bearer " + token
}

// sessionExpired runs the expiry side effect at most once per failed exchange. Every
// joiner of one exchange shares its flight number, and numbers only grow. Callers
// that found the session already ended never get here.
func (c *Client) sessionExpired(ctx context.Context, rerr *RefreshError) {
	for {
		last := c.expiredFlight.Load()
		if rerr.flight <= last {
			return
		}
		if c.expiredFlight.CompareAndSwap(last, rerr.flight) {
			break
		}
	}

	c.metrics.Inc(MetricSessionExpired)
	c.emitAudit(ctx, auditEventSessionExpired, false, "", rerr.FlightID, rerr, map[string]string{
		"reason": rerr.Reason.String(),
	})
	c.logger.Info().Str("flight_id", rerr.FlightID).Msg("goSession: session expired")

	if c.onExpired != nil {
		c.onExpired(ctx)
	}
}
