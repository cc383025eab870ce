package flows

import "errors"

// ErrSuperseded is returned by commit and discard dependencies when the session they
// were started for has since ended or been replaced.
var ErrSuperseded = errors.New("session superseded")

// Deps groups flow dependency sets built once by the client.
type Deps struct {
	Refresh   RefreshDeps
	Login     LoginDeps
	Bootstrap BootstrapDeps
	Logout    LogoutDeps
}
