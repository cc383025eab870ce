package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
)

// cliConfig holds sessionctl settings read from SESSIONCTL_* variables.
type cliConfig struct {
	BackendURL     string        `env:"BACKEND_URL,default=http://localhost:8000"`
	RunningStatus  string        `env:"RUNNING_STATUS,default=running"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT,default=10s"`
	RefreshSkew    time.Duration `env:"REFRESH_SKEW,default=0s"`
	Debounce       time.Duration `env:"DEBOUNCE,default=3s"`
	PollInterval   time.Duration `env:"POLL_INTERVAL,default=30s"`

	StoreKind      string `env:"STORE,default=file"`
	StorePath      string `env:"STORE_PATH"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPrefix    string `env:"REDIS_PREFIX,default=gs"`
	RedisNamespace string `env:"REDIS_NAMESPACE,default=default"`

	AuditLog bool   `env:"AUDIT_LOG,default=false"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func loadConfig(ctx context.Context) (cliConfig, error) {
	var cfg cliConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("SESSIONCTL_", envconfig.OsLookuper()),
	}); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func (c cliConfig) clientConfig() goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.Backend.BaseURL = c.BackendURL
	cfg.Backend.RunningStatus = c.RunningStatus
	cfg.Backend.Timeout = c.RequestTimeout
	cfg.Backend.UserAgent = "sessionctl"
	cfg.Refresh.Timeout = c.RefreshTimeout
	cfg.Refresh.Skew = c.RefreshSkew
	cfg.Reachability.Debounce = c.Debounce
	cfg.Reachability.PollInterval = c.PollInterval
	cfg.Audit.Enabled = c.AuditLog
	return cfg
}

func (c cliConfig) logLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// openStore returns the configured credential store and a cleanup func.
func (c cliConfig) openStore(logger zerolog.Logger) (store.Store, func(), error) {
	switch c.StoreKind {
	case "memory":
		return store.NewMemory(), func() {}, nil

	case "file":
		path := c.StorePath
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, fmt.Errorf("locate config dir: %w", err)
			}
			path = filepath.Join(dir, "sessionctl", "credentials.yaml")
		}
		return store.NewFile(path), func() {}, nil

	case "redis":
		addr := c.RedisAddr
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			logger.Warn().Str("addr", addr).Msg("no SESSIONCTL_REDIS_ADDR, using in-process miniredis; credentials last for this process only")
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup := func() {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
		}
		return store.NewRedis(client, c.RedisPrefix, c.RedisNamespace), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q: want memory, file or redis", c.StoreKind)
	}
}
