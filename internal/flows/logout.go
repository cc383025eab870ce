package flows

import (
	"context"
	"errors"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	// Ended reports whether the session is already unauthenticated.
	Ended    func() bool
	Stored   func(context.Context) (bool, error)
	ClearAll func(context.Context) error
}

type LogoutResult struct {
	// Cleared is set when ClearAll ran.
	Cleared bool
	Err     error
}

// RunLogout clears both credentials. When the session has already ended and nothing is
// stored the call is a no-op. A failed storage probe still attempts the clear.
func RunLogout(ctx context.Context, deps LogoutDeps) LogoutResult {
	var probeErr error
	if deps.Ended != nil && deps.Ended() && deps.Stored != nil {
		stored, err := deps.Stored(ctx)
		if err == nil && !stored {
			return LogoutResult{}
		}
		probeErr = err
	}

	if err := deps.ClearAll(ctx); err != nil {
		return LogoutResult{Cleared: true, Err: errors.Join(err, probeErr)}
	}
	return LogoutResult{Cleared: true}
}
