package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*Redis, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(rdb, "gs", "test"), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, role := range Roles {
		if v, ok, err := s.Get(ctx, role); err != nil || ok || v != "" {
			t.Fatalf("empty get %s: v=%q ok=%v err=%v", role, v, ok, err)
		}
	}

	if err := s.Set(ctx, RoleAccess, "access-1"); err != nil {
		t.Fatalf("set access: %v", err)
	}
	if err := s.Set(ctx, RoleRefresh, "refresh-1"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}
	if v, ok, err := s.Get(ctx, RoleAccess); err != nil || !ok || v != "access-1" {
		t.Fatalf("get access: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := s.Clear(ctx, RoleAccess); err != nil {
		t.Fatalf("clear access: %v", err)
	}
	if _, ok, _ := s.Get(ctx, RoleAccess); ok {
		t.Fatal("access still present after clear")
	}
	if v, ok, _ := s.Get(ctx, RoleRefresh); !ok || v != "refresh-1" {
		t.Fatalf("clear access touched refresh: v=%q ok=%v", v, ok)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("second clear all: %v", err)
	}
	for _, role := range Roles {
		if _, ok, _ := s.Get(ctx, role); ok {
			t.Fatalf("%s present after clear all", role)
		}
	}

	if _, _, err := s.Get(ctx, Role("sessionId")); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStoreContract(t *testing.T) {
	exerciseStore(t, NewFile(filepath.Join(t.TempDir(), "nested", "credentials.yml")))
}

func TestRedisStoreContract(t *testing.T) {
	s, _, done := newRedisStoreTest(t)
	defer done()
	exerciseStore(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.yml")

	first := NewFile(path)
	if err := first.Set(ctx, RoleAccess, "a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Set(ctx, RoleRefresh, "r"); err != nil {
		t.Fatalf("set: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected mode 0600, got %o", perm)
	}

	second := NewFile(path)
	if v, ok, err := second.Get(ctx, RoleRefresh); err != nil || !ok || v != "r" {
		t.Fatalf("reopen get: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestFileStoreCorruptDocumentIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yml")
	if err := os.WriteFile(path, []byte("accessToken: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err := NewFile(path).Get(context.Background(), RoleAccess)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestFileStoreUnwritableIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewFile(filepath.Join(blocker, "credentials.yml"))
	if err := s.Set(context.Background(), RoleAccess, "a"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestRedisStoreKeysAreNamespaced(t *testing.T) {
	s, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := s.Set(ctx, RoleAccess, "a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mr.Get("gs:test:accessToken")
	if err != nil || got != "a" {
		t.Fatalf("expected raw key gs:test:accessToken=a, got %q err=%v", got, err)
	}
	if mr.TTL("gs:test:accessToken") != 0 {
		t.Fatal("credential keys must not carry a TTL")
	}
}

func TestRedisStoreDownIsUnavailable(t *testing.T) {
	s, mr, done := newRedisStoreTest(t)
	defer done()
	mr.Close()

	ctx := context.Background()
	if _, _, err := s.Get(ctx, RoleAccess); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("get: expected ErrStorageUnavailable, got %v", err)
	}
	if err := s.Set(ctx, RoleAccess, "a"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("set: expected ErrStorageUnavailable, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("ping: expected ErrStorageUnavailable, got %v", err)
	}
}
