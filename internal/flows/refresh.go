package flows

import (
	"context"
	"errors"
	"time"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureRead
	RefreshFailureNoCredential
	RefreshFailureExchange
	RefreshFailureCommit
	RefreshFailureSuperseded
)

// RefreshResult carries either the new access credential or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	AccessToken string
	// TimedOut is set when the exchange hit the flow deadline.
	TimedOut bool
	// Discarded is set when both stored credentials were cleared.
	Discarded  bool
	DiscardErr error
	Elapsed    time.Duration
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ReadRefresh func(context.Context) (string, bool, error)
	Exchange    func(ctx context.Context, refresh string) (string, error)
	// Commit persists the access credential. It returns ErrSuperseded when the session
	// the flow started for no longer exists.
	Commit func(ctx context.Context, access string) error
	// Discard clears both credentials, with the same ErrSuperseded contract as Commit.
	Discard func(context.Context) error
	Timeout time.Duration
	Now     func() time.Time
}

// RunRefresh trades the stored refresh credential for a new access credential. It never
// retries. Every failure after the credential is read discards the stored pair.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	start := now()
	res := runRefresh(ctx, deps)
	res.Elapsed = now().Sub(start)
	return res
}

func runRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	refresh, ok, err := deps.ReadRefresh(ctx)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureRead, Err: err}
	}
	if !ok || refresh == "" {
		return discardAfter(ctx, deps, RefreshResult{Failure: RefreshFailureNoCredential})
	}

	exCtx := ctx
	if deps.Timeout > 0 {
		var cancel context.CancelFunc
		exCtx, cancel = context.WithTimeout(ctx, deps.Timeout)
		defer cancel()
	}

	access, err := deps.Exchange(exCtx, refresh)
	if err != nil {
		return discardAfter(ctx, deps, RefreshResult{
			Failure:  RefreshFailureExchange,
			Err:      err,
			TimedOut: errors.Is(exCtx.Err(), context.DeadlineExceeded),
		})
	}

	if err := deps.Commit(ctx, access); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return RefreshResult{Failure: RefreshFailureSuperseded, Err: err}
		}
		return discardAfter(ctx, deps, RefreshResult{Failure: RefreshFailureCommit, Err: err})
	}

	return RefreshResult{AccessToken: access}
}

func discardAfter(ctx context.Context, deps RefreshDeps, res RefreshResult) RefreshResult {
	err := deps.Discard(ctx)
	switch {
	case errors.Is(err, ErrSuperseded):
		return RefreshResult{Failure: RefreshFailureSuperseded, Err: err, TimedOut: res.TimedOut}
	case err != nil:
		res.DiscardErr = err
	default:
		res.Discarded = true
	}
	return res
}
