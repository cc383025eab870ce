package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

// Default routes of the document-chat backend.
const (
	DefaultLoginPath     = "/login/"
	DefaultSignupPath    = "/create_user/"
	DefaultRefreshPath   = "/api/token/refresh/"
	DefaultProfilePath   = "/profile/"
	DefaultStatusPath    = "/"
	DefaultRunningStatus = "running"
)

// Config describes where the backend lives.
type Config struct {
	BaseURL     string
	LoginPath   string
	SignupPath  string
	RefreshPath string
	ProfilePath string
	StatusPath  string
	// Timeout bounds each call when HTTPClient is nil.
	Timeout time.Duration
	// HTTPClient overrides the default client. Its transport is wrapped for tracing.
	HTTPClient *http.Client
	UserAgent  string
}

// Client calls the backend. Safe for concurrent use.
type Client struct {
	base      *url.URL
	cfg       Config
	http      *http.Client
	userAgent string
}

// Profile is the user-identifying data returned by login and profile routes.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	ID       int64  `json:"id"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Profile
}

// New validates cfg and returns a [Client].
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("backend: base URL has no host")
	}

	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.SignupPath == "" {
		cfg.SignupPath = DefaultSignupPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.ProfilePath == "" {
		cfg.ProfilePath = DefaultProfilePath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "goSession"
	}

	return &Client{
		base:      base,
		cfg:       cfg,
		http:      tracedClient(cfg.HTTPClient, cfg.Timeout),
		userAgent: ua,
	}, nil
}

func tracedClient(hc *http.Client, timeout time.Duration) *http.Client {
	if hc == nil {
		return &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	clone := *hc
	rt := clone.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	clone.Transport = otelhttp.NewTransport(rt)
	return &clone
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Resolve joins path onto the base URL, keeping any base path prefix.
func (c *Client) Resolve(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = ""
	return u.String()
}

// Login posts {username, password}. A non-2xx reply is a [*StatusError] carrying the
// backend's error text.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var out LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, c.cfg.LoginPath, "", body, &out); err != nil {
		return nil, err
	}
	if out.Access == "" || out.Refresh == "" {
		return nil, fmt.Errorf("%w: login reply lacks access or refresh", ErrMalformedResponse)
	}
	return &out, nil
}

// CreateUser posts {username, password, email} to the signup route. The reply body
// is ignored; a non-2xx reply is a [*StatusError] carrying the backend's error text.
func (c *Client) CreateUser(ctx context.Context, username, password, email string) error {
	body := map[string]string{"username": username, "password": password, "email": email}
	return c.do(ctx, "signup", http.MethodPost, c.cfg.SignupPath, "", body, nil)
}

// RefreshAccess trades a refresh credential for a new access credential.
func (c *Client) RefreshAccess(ctx context.Context, refresh string) (string, error) {
	body := map[string]string{"refresh": refresh}
	var out struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, "refresh", http.MethodPost, c.cfg.RefreshPath, "", body, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("%w: refresh reply lacks access", ErrMalformedResponse)
	}
	return out.Access, nil
}

// Profile fetches the current user with the given Authorization header value.
func (c *Client) Profile(ctx context.Context, authorization string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, "profile", http.MethodGet, c.cfg.ProfilePath, authorization, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status calls the reachability probe route and returns the reported status string.
func (c *Client) Status(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "status", http.MethodGet, c.cfg.StatusPath, "", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) do(ctx context.Context, op, method, path, authorization string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend %s: encode: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Resolve(path), reader)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrUnreachable, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Detail
}
