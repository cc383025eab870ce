package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/fakebackend"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newFakeBackendCommand() *cobra.Command {
	var (
		addr       string
		users      []string
		secret     string
		accessTTL  time.Duration
		refreshTTL time.Duration
		loginLimit int
		status     string
	)

	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "Run a local backend with the login, refresh, profile and status routes",
		// The fake backend needs no client; skip the root setup.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

			fb := fakebackend.New(fakebackend.Options{
				Secret:         []byte(secret),
				AccessTTL:      accessTTL,
				RefreshTTL:     refreshTTL,
				LoginRateLimit: loginLimit,
				Status:         status,
			})
			for _, u := range users {
				name, password, email, err := parseUser(u)
				if err != nil {
					return err
				}
				id := fb.AddUser(name, password, email)
				logger.Info().Str("username", name).Int64("id", id).Msg("user added")
			}

			srv := &http.Server{Addr: addr, Handler: fb.Handler(), ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Dur("access_ttl", accessTTL).Msg("fake backend listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().StringArrayVar(&users, "user", []string{"demo:demo:demo@example.com"}, "User as name:password[:email]; repeatable")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret; empty uses the built-in development secret")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 5*time.Minute, "Access credential lifetime")
	cmd.Flags().DurationVar(&refreshTTL, "refresh-ttl", 24*time.Hour, "Refresh credential lifetime")
	cmd.Flags().IntVar(&loginLimit, "login-rate-limit", 10, "Login attempts per IP per minute; 0 disables")
	cmd.Flags().StringVar(&status, "status", "running", "Status reported by GET /")
	return cmd
}

func parseUser(value string) (name, password, email string, err error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid --user %q: want name:password[:email]", value)
	}
	if len(parts) == 3 {
		email = parts[2]
	}
	return parts[0], parts[1], email, nil
}
