package flows

import "context"

// LoginGrant is the credential pair and profile fields returned by a successful login.
type LoginGrant struct {
	Access   string
	Refresh  string
	Username string
	Email    string
	ID       int64
}

// LoginFailureKind classifies login flow failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureAuthenticate
	LoginFailureCommit
)

type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Grant   LoginGrant
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Authenticate func(ctx context.Context, username, password string) (LoginGrant, error)
	// Commit stores both credentials and adopts the new session.
	Commit func(context.Context, LoginGrant) error
	// Discard is called when Commit fails part way; its error is not reported.
	Discard func(context.Context) error
}

// RunLogin authenticates and commits the returned pair. Nothing is persisted when the
// backend rejects the request.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	grant, err := deps.Authenticate(ctx, username, password)
	if err != nil {
		return LoginResult{Failure: LoginFailureAuthenticate, Err: err}
	}

	if err := deps.Commit(ctx, grant); err != nil {
		if deps.Discard != nil {
			_ = deps.Discard(ctx)
		}
		return LoginResult{Failure: LoginFailureCommit, Err: err}
	}

	return LoginResult{Grant: grant}
}
