package goSession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrEthical07/goSession/backend"
)

// ProfileHolder owns the profile of the authenticated user. It is cleared on every
// transition away from StatusAuthenticated.
type ProfileHolder struct {
	mu sync.RWMutex
	p  *Profile
}

// Get returns a copy of the held profile.
func (h *ProfileHolder) Get() (Profile, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.p == nil {
		return Profile{}, false
	}
	return *h.p, true
}

func (h *ProfileHolder) set(p Profile) {
	h.mu.Lock()
	h.p = &p
	h.mu.Unlock()
}

func (h *ProfileHolder) clear() {
	h.mu.Lock()
	h.p = nil
	h.mu.Unlock()
}

// Profile returns the current user's profile if one is known.
func (c *Client) Profile() (Profile, bool) {
	return c.profile.Get()
}

// FetchProfile loads the profile from the backend using the current credential. A
// 401 or 403 reply ends the session. A transport failure keeps the session and marks
// the server unreachable.
func (c *Client) FetchProfile(ctx context.Context) (Profile, error) {
	if err := c.ready(); err != nil {
		return Profile{}, err
	}

	start := c.epoch.Load()
	header, err := c.AuthorizationHeader(ctx)
	if err != nil {
		return Profile{}, err
	}
	if header == "" {
		return Profile{}, ErrNotAuthenticated
	}

	bp, err := c.backend.Profile(ctx, header)
	switch {
	case err == nil:
	case backend.IsUnauthorized(err):
		c.metrics.Inc(MetricProfileFailure)
		if c.epoch.Load() == start {
			_ = c.logout(ctx, "profile_rejected")
		}
		return Profile{}, fmt.Errorf("goSession: profile: %w: %w", ErrNotAuthenticated, err)
	case errors.Is(err, backend.ErrUnreachable):
		c.metrics.Inc(MetricProfileFailure)
		c.setReachable(ctx, false, "profile")
		return Profile{}, fmt.Errorf("goSession: profile: %w: %w", ErrNetworkUnreachable, err)
	default:
		c.metrics.Inc(MetricProfileFailure)
		return Profile{}, fmt.Errorf("goSession: profile: %w", err)
	}

	p := Profile(*bp)
	c.writeMu.Lock()
	if c.epoch.Load() == start {
		c.update(func() {
			if c.status == StatusAuthenticated {
				c.profile.set(p)
			}
		})
	}
	c.writeMu.Unlock()
	return p, nil
}

func (c *Client) loadProfile(ctx context.Context) {
	if _, err := c.FetchProfile(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("goSession: profile fetch failed")
	}
}
