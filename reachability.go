package goSession

import (
	"context"
	"strconv"
	"time"
)

// Probe calls the backend status route once. The server counts as reachable only when
// the reply is exactly Config.Backend.RunningStatus. The session status is not touched.
func (c *Client) Probe(ctx context.Context) bool {
	if c.ready() != nil {
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.Reachability.ProbeTimeout)
	defer cancel()

	status, err := c.backend.Status(pctx)
	reachable := err == nil && status == c.cfg.Backend.RunningStatus
	if reachable {
		c.metrics.Inc(MetricProbeSuccess)
	} else {
		c.metrics.Inc(MetricProbeFailure)
		c.logger.Debug().Err(err).Str("reported", status).Msg("goSession: probe failed")
	}

	c.setReachable(ctx, reachable, "probe")
	return reachable
}

// StartReachabilityPolling probes every interval until ctx ends, stop is called or the
// client is closed. A non-positive interval uses Config.Reachability.PollInterval.
func (c *Client) StartReachabilityPolling(ctx context.Context, interval time.Duration) (stop func()) {
	if c.ready() != nil {
		return func() {}
	}
	if interval <= 0 {
		interval = c.cfg.Reachability.PollInterval
	}

	pctx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	c.pollers.Add(1)
	go func() {
		defer c.pollers.Done()
		defer close(finished)

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-pctx.Done():
				return
			case <-c.done:
				return
			case <-t.C:
				c.Probe(pctx)
			}
		}
	}()

	return func() {
		cancel()
		<-finished
	}
}

func (c *Client) setReachable(ctx context.Context, reachable bool, source string) {
	changed := false
	c.update(func() {
		if c.reachable == reachable {
			return
		}
		changed = true
		c.reachable = reachable
		if reachable {
			c.unreachableSince = time.Time{}
		} else {
			c.unreachableSince = c.now()
		}
	})
	if !changed {
		return
	}

	c.emitAudit(ctx, auditEventReachabilityChanged, reachable, "", "", nil, map[string]string{
		"reachable": strconv.FormatBool(reachable),
		"source":    source,
	})
	c.logger.Info().Bool("reachable", reachable).Str("source", source).Msg("goSession: reachability changed")
}
