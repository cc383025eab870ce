package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goSession "github.com/MrEthical07/goSession"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	cfg     cliConfig
	logger  zerolog.Logger
	client  *goSession.Client
	cleanup func()
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Log in to a document-chat backend and manage the stored session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	cmd.AddCommand(
		newLoginCommand(a),
		newSignupCommand(a),
		newLogoutCommand(a),
		newStatusCommand(a),
		newRefreshCommand(a),
		newTokenCommand(a),
		newWhoamiCommand(a),
		newServeCommand(a),
		newFakeBackendCommand(),
	)
	return cmd
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.logLevel()).
		With().Timestamp().Logger()
	return nil
}

// session builds the client on first use so commands that do not need one stay cheap.
func (a *app) session() (*goSession.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	st, cleanup, err := a.cfg.openStore(a.logger)
	if err != nil {
		return nil, err
	}

	clientCfg := a.cfg.clientConfig()
	for _, w := range clientCfg.Lint().BySeverity(goSession.LintWarn) {
		a.logger.Warn().Str("code", w.Code).Str("severity", w.Severity.String()).Msg(w.Message)
	}

	b := goSession.New().
		WithConfig(clientCfg).
		WithStore(st).
		WithLogger(a.logger).
		WithOnSessionExpired(func(context.Context) {
			a.logger.Warn().Msg("session expired; run `sessionctl login` again")
		})
	if clientCfg.Audit.Enabled {
		b.WithAuditSink(goSession.NewLogSink(a.logger))
	}

	c, err := b.Build()
	if err != nil {
		cleanup()
		return nil, err
	}
	a.client = c
	a.cleanup = cleanup
	return c, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.cleanup != nil {
		a.cleanup()
	}
}
