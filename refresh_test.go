package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/fakebackend"
	"github.com/MrEthical07/goSession/store"
)

type refreshOutcome struct {
	token string
	err   error
}

// startRefreshes launches n concurrent Refresh calls and returns a func that waits for
// all of them.
func startRefreshes(env *testEnv, n int) func() []refreshOutcome {
	out := make([]refreshOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := env.client.Refresh(context.Background())
			out[i] = refreshOutcome{token: tok, err: err}
		}(i)
	}
	return func() []refreshOutcome {
		wg.Wait()
		return out
	}
}

// settle gives goroutines launched before a held exchange time to join it.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

func TestConcurrentRefreshesShareOneExchange(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	release := env.hold()

	wait := startRefreshes(env, 8)
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })
	settle()
	release()

	results := wait()
	first := results[0].token
	for i, r := range results {
		if r.err != nil {
			t.Fatalf("caller %d: %v", i, r.err)
		}
		if r.token != first {
			t.Fatalf("caller %d got a different credential", i)
		}
	}
	if got := env.fb.RefreshCalls(); got != 1 {
		t.Fatalf("expected exactly one exchange, got %d", got)
	}
	if got := env.store.value(t, store.RoleAccess); got != first {
		t.Fatalf("stored access should be the shared credential")
	}
	if got := env.client.MetricsSnapshot().Counters[MetricRefreshCoalesced]; got != 7 {
		t.Fatalf("expected the 7 joiners to be counted, not the leader, got %d", got)
	}
}

func TestConcurrentRefreshFailureSharedByAllCallers(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	env.fb.FailRefreshes(http.StatusUnauthorized)
	release := env.hold()

	wait := startRefreshes(env, 5)
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })
	settle()
	release()

	var flightID string
	for i, r := range wait() {
		var rerr *RefreshError
		if !errors.As(r.err, &rerr) {
			t.Fatalf("caller %d: expected *RefreshError, got %v", i, r.err)
		}
		if rerr.Reason != RefreshRejected || !errors.Is(r.err, ErrRefreshRejected) {
			t.Fatalf("caller %d: expected rejected, got %v", i, rerr.Reason)
		}
		if flightID == "" {
			flightID = rerr.FlightID
		} else if rerr.FlightID != flightID {
			t.Fatalf("caller %d: joined a different exchange", i)
		}
	}
	if env.fb.RefreshCalls() != 1 {
		t.Fatalf("expected one exchange, got %d", env.fb.RefreshCalls())
	}
	if env.store.value(t, store.RoleRefresh) != "" {
		t.Fatalf("rejected refresh must clear credentials")
	}
	if got := env.client.Session().Status; got != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}
}

func TestSequentialRefreshesEachExchange(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())

	for i := 0; i < 2; i++ {
		if _, err := env.client.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh #%d: %v", i+1, err)
		}
	}
	if got := env.fb.RefreshCalls(); got != 2 {
		t.Fatalf("settled exchanges must not be reused, got %d calls", got)
	}
}

func TestRefreshWithoutRefreshCredential(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), "")

	_, err := env.client.Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshCredential) {
		t.Fatalf("expected ErrNoRefreshCredential, got %v", err)
	}
	if env.fb.RefreshCalls() != 0 {
		t.Fatalf("no exchange expected without a refresh credential")
	}
	if env.store.value(t, store.RoleAccess) != "" {
		t.Fatalf("stale access credential should be cleared")
	}
	if got := env.client.Session().Status; got != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}
}

func TestRefreshRevokedCredential(t *testing.T) {
	env := newTestEnv(t)
	refresh := env.validRefresh()
	env.seed(env.expiredAccess(), refresh)
	env.fb.Revoke(refresh)

	_, err := env.client.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", err)
	}
	if errors.Is(err, ErrNetworkUnreachable) {
		t.Fatalf("a 401 is not a network failure")
	}
}

func TestRefreshNetworkFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	env.srv.Close()

	_, err := env.client.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshRejected) || !errors.Is(err, ErrNetworkUnreachable) {
		t.Fatalf("expected rejected network failure, got %v", err)
	}
	if env.store.value(t, store.RoleRefresh) != "" {
		t.Fatalf("failed exchange must clear credentials")
	}
	if env.client.Session().ServerReachable {
		t.Fatalf("expected server marked unreachable")
	}
}

func TestRefreshTimeout(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.Refresh.Timeout = 50 * time.Millisecond
	})
	env.seed(env.expiredAccess(), env.validRefresh())
	env.hold()

	_, err := env.client.Refresh(context.Background())
	var rerr *RefreshError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RefreshError, got %v", err)
	}
	if !rerr.TimedOut || rerr.Reason != RefreshRejected {
		t.Fatalf("expected timed-out rejection, got %+v", rerr)
	}
	if env.store.value(t, store.RoleRefresh) != "" || env.store.value(t, store.RoleAccess) != "" {
		t.Fatalf("timed-out refresh must clear credentials")
	}
}

func TestRefreshCallerCancelDoesNotCancelExchange(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	release := env.hold()

	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan error, 1)
	go func() {
		_, err := env.client.Refresh(ctx)
		canceled <- err
	}()
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })

	wait := startRefreshes(env, 1)
	settle()
	cancel()

	select {
	case err := <-canceled:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("canceled caller did not return")
	}

	release()
	r := wait()[0]
	if r.err != nil {
		t.Fatalf("remaining caller should get the shared result: %v", r.err)
	}
	if env.fb.RefreshCalls() != 1 {
		t.Fatalf("expected one exchange, got %d", env.fb.RefreshCalls())
	}
	if got := env.store.value(t, store.RoleAccess); got != r.token {
		t.Fatalf("exchange should still commit after the first caller left")
	}
}

func TestLogoutDuringRefreshDiscardsResult(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	release := env.hold()

	wait := startRefreshes(env, 1)
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })

	if err := env.client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	release()

	r := wait()[0]
	if !errors.Is(r.err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", r.err)
	}
	for _, role := range store.Roles {
		if v := env.store.value(t, role); v != "" {
			t.Fatalf("late refresh must not resurrect %s", role)
		}
	}
	if got := env.client.Session().Status; got != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}
	if got := env.client.MetricsSnapshot().Counters[MetricRefreshSuperseded]; got != 1 {
		t.Fatalf("expected superseded metric 1, got %d", got)
	}
}

func TestLoginDuringRefreshKeepsNewSession(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	release := env.hold()

	wait := startRefreshes(env, 1)
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })

	if err := env.client.Login(context.Background(), "alice", "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	loggedIn := env.store.value(t, store.RoleAccess)
	release()

	if r := wait()[0]; !errors.Is(r.err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", r.err)
	}
	if got := env.store.value(t, store.RoleAccess); got != loggedIn {
		t.Fatalf("late refresh overwrote the login credential")
	}
	if got := env.client.Session().Status; got != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", got)
	}
}

func TestRefreshCommitFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	env.store.failSet.Store(true)

	_, err := env.client.Refresh(context.Background())
	var rerr *RefreshError
	if !errors.As(err, &rerr) || rerr.Reason != RefreshStorage {
		t.Fatalf("expected storage refresh error, got %v", err)
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if env.store.clearAlls.Load() != 1 {
		t.Fatalf("failed commit must discard the pair")
	}
}

func TestRefreshReadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.failGet.Store(true)

	_, err := env.client.Refresh(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if env.fb.RefreshCalls() != 0 {
		t.Fatalf("no exchange expected when the store cannot be read")
	}
}

func TestAuthorizationHeaderValidCredential(t *testing.T) {
	env := newTestEnv(t)
	access := env.validAccess()
	env.seed(access, env.validRefresh())

	got, err := env.client.AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	if got != "Bearer "+access {
		t.Fatalf("unexpected header %q", got)
	}
	if env.fb.RefreshCalls() != 0 {
		t.Fatalf("valid credential must not be refreshed")
	}
}

func TestAuthorizationHeaderAnonymous(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.client.AuthorizationHeader(context.Background())
	if err != nil || got != "" {
		t.Fatalf("expected anonymous request, got %q, %v", got, err)
	}
	if env.expired.Load() != 0 {
		t.Fatalf("anonymous request must not trigger expiry")
	}
}

func TestAuthorizationHeaderMalformedCredentialRefreshes(t *testing.T) {
	env := newTestEnv(t)
	env.seed("garbage", env.validRefresh())

	got, err := env.client.AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	stored := env.store.value(t, store.RoleAccess)
	if got != "Bearer "+stored || stored == "garbage" {
		t.Fatalf("expected header with replaced credential, got %q", got)
	}
	if env.fb.RefreshCalls() != 1 {
		t.Fatalf("expected one exchange, got %d", env.fb.RefreshCalls())
	}
}

func TestAuthorizationHeaderExpiredRejectedFiresHookOnce(t *testing.T) {
	env := newTestEnv(t)
	if err := env.client.Login(context.Background(), "alice", "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	env.seed(env.expiredAccess(), "")
	env.fb.FailRefreshes(http.StatusUnauthorized)
	release := env.hold()

	const n = 6
	errs := make([]error, n)
	headers := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			headers[i], errs[i] = env.client.AuthorizationHeader(context.Background())
		}(i)
	}
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })
	settle()
	release()
	wg.Wait()

	for i := 0; i < n; i++ {
		if headers[i] != "" {
			t.Fatalf("caller %d: expired credential must not be attached", i)
		}
		if !errors.Is(errs[i], ErrRefreshRejected) {
			t.Fatalf("caller %d: expected ErrRefreshRejected, got %v", i, errs[i])
		}
	}
	if got := env.expired.Load(); got != 1 {
		t.Fatalf("expected the expiry hook once, got %d", got)
	}
	if got := env.client.Session().Status; got != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}

	// The pair is gone, so later requests go out anonymously with no further hook.
	if h, err := env.client.AuthorizationHeader(context.Background()); h != "" || err != nil {
		t.Fatalf("expected anonymous request after expiry, got %q, %v", h, err)
	}
	if got := env.expired.Load(); got != 1 {
		t.Fatalf("expiry hook ran again: %d", got)
	}
}

// gatedStore pauses the first access read after arming, once the value has been read.
type gatedStore struct {
	store.Store
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{Store: store.NewMemory(), reached: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Get(ctx context.Context, role store.Role) (string, bool, error) {
	v, ok, err := g.Store.Get(ctx, role)
	if role == store.RoleAccess && g.armed.CompareAndSwap(true, false) {
		close(g.reached)
		<-g.release
	}
	return v, ok, err
}

func (g *gatedStore) open() {
	g.once.Do(func() { close(g.release) })
}

func TestAuthorizationHeaderLateReaderAfterExpirySkipsHook(t *testing.T) {
	gs := newGatedStore()
	t.Cleanup(gs.open)
	env := newTestEnv(t, func(_ *Config, b *Builder) { b.WithStore(gs) })
	ctx := context.Background()

	if err := env.client.Login(ctx, "alice", "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := gs.Store.Set(ctx, store.RoleAccess, env.expiredAccess()); err != nil {
		t.Fatalf("seed access: %v", err)
	}
	env.fb.FailRefreshes(http.StatusUnauthorized)

	// The late caller reads the expired credential, then waits until the session is gone.
	gs.armed.Store(true)
	late := make(chan error, 1)
	go func() {
		_, err := env.client.AuthorizationHeader(ctx)
		late <- err
	}()
	select {
	case <-gs.reached:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the late reader")
	}

	if _, err := env.client.AuthorizationHeader(ctx); !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", err)
	}
	if got := env.expired.Load(); got != 1 {
		t.Fatalf("expected the expiry hook once, got %d", got)
	}

	gs.open()
	if err := <-late; !errors.Is(err, ErrNoRefreshCredential) {
		t.Fatalf("late caller: expected ErrNoRefreshCredential, got %v", err)
	}
	if got := env.expired.Load(); got != 1 {
		t.Fatalf("expiry hook ran again for a session that had already ended: %d", got)
	}
	if got := env.fb.RefreshCalls(); got != 1 {
		t.Fatalf("expected one exchange, got %d", got)
	}
}

func TestAuthorizationHeaderStorageFailureSkipsHook(t *testing.T) {
	env := newTestEnv(t)
	if err := env.client.Login(context.Background(), "alice", "correct-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	env.seed(env.expiredAccess(), "")
	env.store.failSet.Store(true)

	h, err := env.client.AuthorizationHeader(context.Background())
	if h != "" {
		t.Fatalf("no credential may be attached when the commit fails")
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if env.expired.Load() != 0 {
		t.Fatalf("a storage failure is not a session expiry")
	}
}

func TestAuthorizationHeaderStaleRefreshNotAttached(t *testing.T) {
	fb := fakebackend.New(fakebackend.Options{})
	stale := fb.MintAccess("alice", time.Now().Add(-time.Minute))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access": stale})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env := newTestEnvWithServer(t, fb, srv)
	env.seed(fb.MintAccess("alice", time.Now().Add(-time.Hour)), "refresh-token")

	h, err := env.client.AuthorizationHeader(context.Background())
	if h != "" {
		t.Fatalf("stale credential must not be attached")
	}
	if !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", err)
	}
	if env.expired.Load() != 0 {
		t.Fatalf("a successful exchange must not run the expiry hook")
	}
}

func TestAuthorizationHeaderAfterLogoutDuringRefreshSkipsHook(t *testing.T) {
	env := newTestEnv(t)
	env.seed(env.expiredAccess(), env.validRefresh())
	release := env.hold()

	done := make(chan error, 1)
	go func() {
		_, err := env.client.AuthorizationHeader(context.Background())
		done <- err
	}()
	waitFor(t, "refresh request", func() bool { return env.fb.RefreshCalls() == 1 })
	if err := env.client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	release()

	if err := <-done; !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if env.expired.Load() != 0 {
		t.Fatalf("an explicit logout is not a session expiry")
	}
}
