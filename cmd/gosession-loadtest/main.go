package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/fakebackend"
	"github.com/MrEthical07/goSession/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "authorize calls in the warm phase")
		rounds      = flag.Int("rounds", 50, "expiry rounds in the storm phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gs", "credential key prefix")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, ops, and rounds must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var rdb redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	fb := fakebackend.New(fakebackend.Options{})
	fb.AddUser("load", "load", "load@example.com")
	backendURL, stopBackend, err := startBackend(fb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start backend: %v\n", err)
		os.Exit(1)
	}
	defer stopBackend()

	st := store.NewRedis(rdb, *prefix, "loadtest")
	cfg := goSession.DefaultConfig()
	cfg.Backend.BaseURL = backendURL
	cfg.Reachability.ProbeOnBootstrap = false
	client, err := goSession.New().WithConfig(cfg).WithStore(st).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Login(ctx, "load", "load"); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	warm := runAuthorizePhase(ctx, client, *ops, *concurrency)
	storm, exchanges := runStormPhase(ctx, client, st, fb, *rounds, *concurrency)

	fmt.Println("---- results ----")
	printStats("authorize", warm)
	printStats("storm", storm)
	fmt.Printf("storm: rounds=%d exchanges=%d exchanges/round=%.2f coalesced=%d\n",
		*rounds, exchanges, float64(exchanges)/float64(*rounds),
		client.MetricsSnapshot().Counters[goSession.MetricRefreshCoalesced])
}

func startBackend(fb *fakebackend.Server) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: fb.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "backend: %v\n", err)
		}
	}()
	return "http://" + ln.Addr().String(), func() { _ = srv.Close() }, nil
}

// runAuthorizePhase measures AuthorizationHeader with a valid credential: one store
// read and a local decode per call, no network.
func runAuthorizePhase(ctx context.Context, client *goSession.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				h, err := client.AuthorizationHeader(ctx)
				d := time.Since(t0)
				if err != nil || h == "" {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runStormPhase expires the access credential each round and releases every worker at
// once. One exchange per round means coalescing held.
func runStormPhase(ctx context.Context, client *goSession.Client, st store.Store, fb *fakebackend.Server, rounds, concurrency int) (phaseStats, int64) {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, rounds*concurrency)
		mu        sync.Mutex
	)
	before := fb.RefreshCalls()

	start := time.Now()
	for r := 0; r < rounds; r++ {
		expired := fb.MintAccess("load", time.Now().Add(-time.Second))
		if err := st.Set(ctx, store.RoleAccess, expired); err != nil {
			fmt.Fprintf(os.Stderr, "seed expired credential: %v\n", err)
			os.Exit(1)
		}

		gate := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				_, err := client.AuthorizationHeader(ctx)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		close(gate)
		wg.Wait()
	}
	return computeStats(time.Since(start), latencies, failures), fb.RefreshCalls() - before
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
