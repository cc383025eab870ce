package goSession

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/fakebackend"
	"github.com/MrEthical07/goSession/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkClient(b *testing.B, st store.Store) (*Client, func()) {
	b.Helper()

	fb := fakebackend.New(fakebackend.Options{AccessTTL: time.Hour})
	fb.AddUser("alice", "correct-password-123", "alice@example.com")
	srv := httptest.NewServer(fb.Handler())

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	cfg.Reachability.ProbeOnBootstrap = false
	c, err := New().WithConfig(cfg).WithStore(st).Build()
	if err != nil {
		srv.Close()
		b.Fatalf("build failed: %v", err)
	}
	if err := c.Login(context.Background(), "alice", "correct-password-123"); err != nil {
		c.Close()
		srv.Close()
		b.Fatalf("login failed: %v", err)
	}
	return c, func() {
		c.Close()
		srv.Close()
	}
}

func BenchmarkAuthorizationHeaderMemory(b *testing.B) {
	c, cleanup := newBenchmarkClient(b, store.NewMemory())
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if h, err := c.AuthorizationHeader(context.Background()); err != nil || h == "" {
			b.Fatalf("authorize failed: %q %v", h, err)
		}
	}
}

func BenchmarkAuthorizationHeaderRedis(b *testing.B) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c, cleanup := newBenchmarkClient(b, store.NewRedis(rdb, "gs", "bench"))
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if h, err := c.AuthorizationHeader(context.Background()); err != nil || h == "" {
			b.Fatalf("authorize failed: %q %v", h, err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	c, cleanup := newBenchmarkClient(b, store.NewMemory())
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Refresh(context.Background()); err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkAuthorizationHeaderParallel(b *testing.B) {
	c, cleanup := newBenchmarkClient(b, store.NewMemory())
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.AuthorizationHeader(context.Background()); err != nil {
				b.Errorf("authorize failed: %v", err)
				return
			}
		}
	})
}
