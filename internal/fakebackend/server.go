// Package fakebackend is an in-process stand-in for the document-chat backend's auth
// routes. It signs real HS256 tokens so clients exercise genuine claim decoding.
package fakebackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Options configures a [Server]. Zero values get usable defaults.
type Options struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	// LoginRateLimit caps login attempts per client IP per minute; 0 disables throttling.
	LoginRateLimit int
	Status         string
}

type user struct {
	passwordHash string
	email    string
	id       int64
}

type tokenClaims struct {
	Kind   string `json:"kind"`
	UserID int64  `json:"user_id"`
	jwt.RegisteredClaims
}

// Server implements POST /login/, POST /create_user/, POST /api/token/refresh/,
// GET /profile/ and GET /.
type Server struct {
	opts Options

	mu       sync.RWMutex
	users    map[string]user
	nextID   int64
	status   string
	revoked  map[string]struct{}
	failCode int
	hold     chan struct{}

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	profileCalls atomic.Int64
	statusCalls  atomic.Int64
}

// New returns a server with no users.
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("fakebackend-secret")
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Status == "" {
		opts.Status = "running"
	}
	return &Server{
		opts:    opts,
		users:   make(map[string]user),
		status:  opts.Status,
		revoked: make(map[string]struct{}),
	}
}

// AddUser registers a user and returns its identifier. The password is stored as
// an argon2id hash.
func (s *Server) AddUser(username, password, email string) int64 {
	hash := hashPassword(password)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.users[username] = user{passwordHash: hash, email: email, id: s.nextID}
	return s.nextID
}

// SetStatus changes the value reported by the probe route.
func (s *Server) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// FailRefreshes makes every refresh answer with code; 0 restores normal behaviour.
func (s *Server) FailRefreshes(code int) {
	s.mu.Lock()
	s.failCode = code
	s.mu.Unlock()
}

// Revoke invalidates a refresh token.
func (s *Server) Revoke(refresh string) {
	s.mu.Lock()
	s.revoked[refresh] = struct{}{}
	s.mu.Unlock()
}

// HoldRefreshes blocks refresh requests, after they are counted, until release is called.
func (s *Server) HoldRefreshes() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Server) LoginCalls() int64   { return s.loginCalls.Load() }
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }
func (s *Server) ProfileCalls() int64 { return s.profileCalls.Load() }
func (s *Server) StatusCalls() int64  { return s.statusCalls.Load() }

// MintAccess signs an access token for username expiring at exp.
func (s *Server) MintAccess(username string, exp time.Time) string {
	return s.mint("access", username, exp)
}

// MintRefresh signs a refresh token for username expiring at exp.
func (s *Server) MintRefresh(username string, exp time.Time) string {
	return s.mint("refresh", username, exp)
}

func (s *Server) mint(kind, username string, exp time.Time) string {
	s.mu.RLock()
	u := s.users[username]
	s.mu.RUnlock()

	now := s.opts.Now()
	claims := tokenClaims{
		Kind:   kind,
		UserID: u.id,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		panic("fakebackend: sign token: " + err.Error())
	}
	return tok
}

func (s *Server) parse(raw, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Now),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.opts.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, errors.New("wrong token kind")
	}
	return claims, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleStatus)
	r.Group(func(r chi.Router) {
		if s.opts.LoginRateLimit > 0 {
			r.Use(httprate.LimitByIP(s.opts.LoginRateLimit, time.Minute))
		}
		r.Post("/login/", s.handleLogin)
		r.Post("/create_user/", s.handleCreateUser)
	})
	r.Post("/api/token/refresh/", s.handleRefresh)
	r.Get("/profile/", s.handleProfile)

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.statusCalls.Add(1)
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.mu.RLock()
	u, ok := s.users[in.Username]
	s.mu.RUnlock()
	if !ok || !verifyPassword(in.Password, u.passwordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
		return
	}

	now := s.opts.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"access":   s.MintAccess(in.Username, now.Add(s.opts.AccessTTL)),
		"refresh":  s.MintRefresh(in.Username, now.Add(s.opts.RefreshTTL)),
		"username": in.Username,
		"email":    u.email,
		"id":       u.id,
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return
	}

	hash := hashPassword(in.Password)
	s.mu.Lock()
	if _, taken := s.users[in.Username]; taken {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username already exists"})
		return
	}
	s.nextID++
	id := s.nextID
	s.users[in.Username] = user{passwordHash: hash, email: in.Email, id: id}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"username": in.Username,
		"email":    in.Email,
		"id":       id,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.RLock()
	hold := s.hold
	failCode := s.failCode
	s.mu.RUnlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}
	if failCode != 0 {
		writeJSON(w, failCode, map[string]string{"detail": "Token is invalid or expired"})
		return
	}

	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "refresh is required"})
		return
	}

	s.mu.RLock()
	_, revoked := s.revoked[in.Refresh]
	s.mu.RUnlock()
	claims, err := s.parse(in.Refresh, "refresh")
	if revoked || err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access": s.MintAccess(claims.Subject, s.opts.Now().Add(s.opts.AccessTTL)),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.profileCalls.Add(1)
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return
	}
	claims, err := s.parse(raw, "access")
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}

	s.mu.RLock()
	u, found := s.users[claims.Subject]
	s.mu.RUnlock()
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": claims.Subject,
		"email":    u.email,
		"id":       u.id,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
