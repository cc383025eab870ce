package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var pages = template.Must(template.New("pages").Parse(`
{{define "login"}}<!doctype html><html><body>
<h1>Sign in</h1>
{{if .}}<p role="alert">{{.}}</p>{{end}}
<form method="post" action="/login">
<input name="username" placeholder="Username" autofocus>
<input name="password" type="password" placeholder="Password">
<button type="submit">Sign in</button>
</form></body></html>{{end}}
{{define "home"}}<!doctype html><html><body>
<h1>Signed in</h1>
{{with .Profile}}<p>{{.Username}} &lt;{{.Email}}&gt;</p>{{end}}
<form method="post" action="/logout"><button type="submit">Log out</button></form>
</body></html>{{end}}
`))

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a small web front end guarded by the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), c, a.logger, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	return cmd
}

func serve(ctx context.Context, c *goSession.Client, logger zerolog.Logger, addr string) error {
	if err := c.Bootstrap(ctx); err != nil {
		logger.Error().Err(err).Msg("bootstrap failed; continuing unauthenticated")
	}
	stopPolling := c.StartReachabilityPolling(ctx, 0)
	defer stopPolling()

	updates, cancel := c.Subscribe(8)
	defer cancel()
	go func() {
		for s := range updates {
			logger.Info().
				Str("status", s.Status.String()).
				Bool("reachable", s.ServerReachable).
				Msg("session changed")
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(c, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(c *goSession.Client, logger zerolog.Logger) http.Handler {
	debounce := c.Config().Reachability.Debounce

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/login", func(w http.ResponseWriter, _ *http.Request) {
		renderPage(w, http.StatusOK, "login", "")
	})
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			renderPage(w, http.StatusBadRequest, "login", "Invalid form")
			return
		}
		err := c.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
		var le *goSession.LoginError
		switch {
		case err == nil:
			http.Redirect(w, r, "/", http.StatusSeeOther)
		case errors.As(err, &le):
			renderPage(w, http.StatusUnauthorized, "login", le.Error())
		case errors.Is(err, goSession.ErrNetworkUnreachable):
			renderPage(w, http.StatusServiceUnavailable, "login", "The server is unreachable. Please try again later.")
		default:
			logger.Error().Err(err).Msg("login failed")
			renderPage(w, http.StatusInternalServerError, "login", "Login failed")
		}
	})

	logout := func(w http.ResponseWriter, r *http.Request) {
		if err := c.Logout(r.Context()); err != nil {
			logger.Error().Err(err).Msg("logout failed")
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	r.Get("/logout", logout)
	r.Post("/logout", logout)

	r.With(middleware.RouteGuard(c, middleware.GuardOptions{Debounce: debounce})).
		Get("/", func(w http.ResponseWriter, r *http.Request) {
			s, _ := middleware.SessionFromContext(r.Context())
			renderPage(w, http.StatusOK, "home", s)
		})

	r.Get("/api/session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Session())
	})
	r.With(middleware.RequireAuthenticated(c, debounce)).
		Get("/api/profile", func(w http.ResponseWriter, r *http.Request) {
			p, err := c.FetchProfile(r.Context())
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, p)
		})

	r.Handle("/metrics", prometheus.NewPrometheusExporter(c).Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func renderPage(w http.ResponseWriter, code int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = pages.ExecuteTemplate(w, name, data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
