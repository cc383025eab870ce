package flows

import "context"

// BootstrapOutcome is how the stored session was resolved at start.
type BootstrapOutcome int

const (
	BootstrapNoCredential BootstrapOutcome = iota
	BootstrapValid
	BootstrapRefreshed
	BootstrapRefreshFailed
	BootstrapStorageFailure
)

func (o BootstrapOutcome) String() string {
	switch o {
	case BootstrapNoCredential:
		return "no_credential"
	case BootstrapValid:
		return "valid"
	case BootstrapRefreshed:
		return "refreshed"
	case BootstrapRefreshFailed:
		return "refresh_failed"
	case BootstrapStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

type BootstrapResult struct {
	Outcome BootstrapOutcome
	Err     error
}

// BootstrapDeps captures bootstrap flow dependencies.
type BootstrapDeps struct {
	ReadAccess   func(context.Context) (string, bool, error)
	NeedsRefresh func(access string) bool
	Refresh      func(context.Context) error
}

// RunBootstrap decides the initial outcome from the stored access credential. The
// refresh dependency runs only when a stored credential is expired or malformed.
func RunBootstrap(ctx context.Context, deps BootstrapDeps) BootstrapResult {
	access, ok, err := deps.ReadAccess(ctx)
	if err != nil {
		return BootstrapResult{Outcome: BootstrapStorageFailure, Err: err}
	}
	if !ok || access == "" {
		return BootstrapResult{Outcome: BootstrapNoCredential}
	}
	if !deps.NeedsRefresh(access) {
		return BootstrapResult{Outcome: BootstrapValid}
	}
	if err := deps.Refresh(ctx); err != nil {
		return BootstrapResult{Outcome: BootstrapRefreshFailed, Err: err}
	}
	return BootstrapResult{Outcome: BootstrapRefreshed}
}
