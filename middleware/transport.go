package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// Authorizer returns the Authorization header for an outbound request.
// [*goSession.Client] implements it.
type Authorizer interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// Transport attaches the session credential to every request it sends. A request whose
// credential could not be refreshed goes out without one; any other authorizer failure
// fails the round trip.
type Transport struct {
	Authorizer Authorizer
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// NewTransport returns a [Transport] over base.
func NewTransport(a Authorizer, base http.RoundTripper) *Transport {
	return &Transport{Authorizer: a, Base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	header, err := t.Authorizer.AuthorizationHeader(req.Context())
	if err != nil && !sendAnonymously(err) {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("middleware: authorize request: %w", err)
	}
	if header == "" {
		return base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", header)
	return base.RoundTrip(out)
}

func sendAnonymously(err error) bool {
	var rerr *goSession.RefreshError
	return errors.As(err, &rerr) || errors.Is(err, goSession.ErrRefreshRejected)
}

// NewHTTPClient returns a copy of base whose transport authorizes every request through
// a. A nil base starts from a zero http.Client.
func NewHTTPClient(a Authorizer, base *http.Client) *http.Client {
	var hc http.Client
	if base != nil {
		hc = *base
	}
	hc.Transport = NewTransport(a, hc.Transport)
	return &hc
}
