package goSession

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestSignupThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.client.Signup(ctx, "bob", "hunter2", "bob@example.com"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if got := env.client.Session().Status; got != StatusUnknown {
		t.Fatalf("signup must not change the session, got %s", got)
	}
	if env.store.sets.Load() != 0 {
		t.Fatalf("signup must not store credentials")
	}

	if err := env.client.Login(ctx, "bob", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p, ok := env.client.Profile(); !ok || p.Email != "bob@example.com" {
		t.Fatalf("unexpected profile %+v %v", p, ok)
	}
}

func TestSignupRejectedMessageVerbatim(t *testing.T) {
	env := newTestEnv(t)

	err := env.client.Signup(context.Background(), "alice", "whatever", "")
	var se *SignupError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SignupError, got %v", err)
	}
	if se.Message != "Username already exists" || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected signup error %+v", se)
	}
	if !errors.Is(err, ErrSignupRejected) || errors.Is(err, ErrLoginRejected) {
		t.Fatalf("signup rejection matched the wrong sentinel: %v", err)
	}
}

func TestSignupKeepsAuthenticatedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.client.Login(ctx, "alice", "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := env.client.Signup(ctx, "alice", "x", ""); !errors.Is(err, ErrSignupRejected) {
		t.Fatalf("expected ErrSignupRejected, got %v", err)
	}
	if got := env.client.Session().Status; got != StatusAuthenticated {
		t.Fatalf("a refused signup must not end the session, got %s", got)
	}
}

func TestSignupNetworkFailure(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Close()

	err := env.client.Signup(context.Background(), "bob", "pw", "")
	if !errors.Is(err, ErrNetworkUnreachable) {
		t.Fatalf("expected ErrNetworkUnreachable, got %v", err)
	}
	if errors.Is(err, ErrSignupRejected) {
		t.Fatalf("network failure must not look like a rejection")
	}
	if env.client.Session().ServerReachable {
		t.Fatalf("expected server marked unreachable")
	}
}

func TestSignupAuditEvents(t *testing.T) {
	sink := NewChannelSink(4)
	env := newTestEnv(t, func(cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	})

	_ = env.client.Signup(context.Background(), "bob", "pw", "")
	_ = env.client.Signup(context.Background(), "bob", "pw", "")

	for _, want := range []struct{ eventType, errCode string }{
		{"signup_success", ""},
		{"signup_failure", "signup_rejected"},
	} {
		select {
		case ev := <-sink.Events():
			if ev.EventType != want.eventType || ev.Error != want.errCode || ev.Subject != "bob" {
				t.Fatalf("expected %+v, got %+v", want, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", want.eventType)
		}
	}
}

func TestSignupOnClosedClient(t *testing.T) {
	env := newTestEnv(t)
	env.client.Close()
	if err := env.client.Signup(context.Background(), "bob", "pw", ""); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
}
