package goSession

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/fakebackend"
	"github.com/MrEthical07/goSession/store"
)

// countingStore wraps a memory store with call counters and injectable failures.
type countingStore struct {
	*store.Memory

	clearAlls atomic.Int64
	sets      atomic.Int64
	failGet   atomic.Bool
	failSet   atomic.Bool
	failClear atomic.Bool
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory()}
}

func injected(op string) error {
	return fmt.Errorf("%w: %s: injected failure", store.ErrStorageUnavailable, op)
}

func (s *countingStore) Get(ctx context.Context, role store.Role) (string, bool, error) {
	if s.failGet.Load() {
		return "", false, injected("get")
	}
	return s.Memory.Get(ctx, role)
}

func (s *countingStore) Set(ctx context.Context, role store.Role, value string) error {
	s.sets.Add(1)
	if s.failSet.Load() {
		return injected("set")
	}
	return s.Memory.Set(ctx, role, value)
}

func (s *countingStore) ClearAll(ctx context.Context) error {
	s.clearAlls.Add(1)
	if s.failClear.Load() {
		return injected("clear")
	}
	return s.Memory.ClearAll(ctx)
}

func (s *countingStore) value(t *testing.T, role store.Role) string {
	t.Helper()
	v, _, err := s.Memory.Get(context.Background(), role)
	if err != nil {
		t.Fatalf("get %s: %v", role, err)
	}
	return v
}

type testEnv struct {
	t       *testing.T
	fb      *fakebackend.Server
	srv     *httptest.Server
	store   *countingStore
	client  *Client
	expired atomic.Int64
}

type envOption func(*Config, *Builder)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	fb := fakebackend.New(fakebackend.Options{})
	fb.AddUser("alice", "correct-password", "alice@example.com")
	srv := httptest.NewServer(fb.Handler())
	t.Cleanup(srv.Close)

	return newTestEnvWithServer(t, fb, srv, opts...)
}

func newTestEnvWithServer(t *testing.T, fb *fakebackend.Server, srv *httptest.Server, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{t: t, fb: fb, srv: srv, store: newCountingStore()}

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Refresh.Timeout = 2 * time.Second
	cfg.Reachability.ProbeTimeout = time.Second

	b := New().
		WithStore(env.store).
		WithOnSessionExpired(func(context.Context) { env.expired.Add(1) })
	for _, opt := range opts {
		opt(&cfg, b)
	}
	b.WithConfig(cfg)

	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)
	env.client = c
	return env
}

// hold blocks refresh exchanges until the returned release is called or the test ends.
func (e *testEnv) hold() func() {
	release := e.fb.HoldRefreshes()
	e.t.Cleanup(release)
	return release
}

func (e *testEnv) seed(access, refresh string) {
	e.t.Helper()
	ctx := context.Background()
	if access != "" {
		if err := e.store.Memory.Set(ctx, store.RoleAccess, access); err != nil {
			e.t.Fatalf("seed access: %v", err)
		}
	}
	if refresh != "" {
		if err := e.store.Memory.Set(ctx, store.RoleRefresh, refresh); err != nil {
			e.t.Fatalf("seed refresh: %v", err)
		}
	}
}

func (e *testEnv) validAccess() string {
	return e.fb.MintAccess("alice", time.Now().Add(time.Hour))
}

func (e *testEnv) expiredAccess() string {
	return e.fb.MintAccess("alice", time.Now().Add(-time.Second))
}

func (e *testEnv) validRefresh() string {
	return e.fb.MintRefresh("alice", time.Now().Add(24*time.Hour))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
