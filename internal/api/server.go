// Package api is the HTTP gateway in front of the employee backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"workload/internal/availability"
	"workload/internal/config"
	"workload/internal/database"
	"workload/internal/forms"
	"workload/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	headerAPIKey    = "X-Api-Key"
	headerSessionID = "X-Session-Id"
	headerRequestID = "X-Request-Id"
)

// Employees is the save service the gateway drives.
type Employees interface {
	Today() availability.Date
	LoadEmployee(ctx context.Context, sid, id string) (models.Record, error)
	LoadDetailsForm(ctx context.Context, sid, id string) (*forms.DetailsForm, error)
	LoadProfileForm(ctx context.Context, sid, id string) (*forms.ProfileForm, error)
	Projects(ctx context.Context) ([]string, error)
	SaveDetails(ctx context.Context, sid, employeeID string, f *forms.DetailsForm) (models.Record, error)
	SaveProfile(ctx context.Context, sid, originalID string, f *forms.ProfileForm) (models.Record, error)
	UpdatePassword(ctx context.Context, sid, token string, f *forms.PasswordForm) error
}

// Options returns the current role and cluster lists.
type Options interface {
	Get() config.Options
}

// History lists the recorded save attempts of one employee.
type History interface {
	RecentSaveAttempts(ctx context.Context, employeeID string, limit int) ([]database.SaveAttempt, error)
}

// Reports builds and delivers the audit report on demand.
type Reports interface {
	ExportNow(ctx context.Context) error
}

type Config struct {
	Address        string
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
}

// HTTPServer serves the gateway API.
type HTTPServer struct {
	server  *http.Server
	svc     Employees
	options Options
	history History
	reports Reports
	apiKey  string
	limiter *clientLimiter
	ready   func(ctx context.Context) error
	log     *zerolog.Logger
}

// NewHTTPServer wires routes. ready backs /readyz and may be nil.
func NewHTTPServer(cfg Config, svc Employees, options Options, ready func(ctx context.Context) error, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		svc:     svc,
		options: options,
		apiKey:  cfg.APIKey,
		limiter: newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		ready:   ready,
		log:     logger,
	}

	api := http.NewServeMux()
	api.HandleFunc("/api/availability/validate", s.handleValidate)
	api.HandleFunc("/api/availability/bounds", s.handleBounds)
	api.HandleFunc("/api/options", s.handleOptions)
	api.HandleFunc("/api/projects", s.handleProjects)
	api.HandleFunc("/api/employees/{id}", s.handleEmployee)
	api.HandleFunc("/api/employees/{id}/details", byMethod(map[string]http.HandlerFunc{
		http.MethodGet:   s.handleDetailsForm,
		http.MethodPatch: s.handleSaveDetails,
	}))
	api.HandleFunc("/api/employees/{id}/profile", byMethod(map[string]http.HandlerFunc{
		http.MethodGet:   s.handleProfileForm,
		http.MethodPatch: s.handleSaveProfile,
	}))
	api.HandleFunc("/api/employees/{id}/history", s.handleHistory)
	api.HandleFunc("/api/forms/details/edit", s.handleEditDetails)
	api.HandleFunc("/api/forms/profile/edit", s.handleEditProfile)
	api.HandleFunc("/api/auth/update-password", s.handleUpdatePassword)
	api.HandleFunc("/api/admin/audit/export", s.handleAuditExport)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/api/", s.withRequestID(s.withRateLimit(s.withAPIKey(api))))

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// SetHistory enables GET /api/employees/{id}/history.
func (s *HTTPServer) SetHistory(h History) {
	s.history = h
}

// SetReports enables POST /api/admin/audit/export.
func (s *HTTPServer) SetReports(r Reports) {
	s.reports = r
}

// Handler exposes the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start listens until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get(headerAPIKey) != s.apiKey {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if !s.limiter.allow(client) {
			s.log.Warn().Str("client", client).Msg("rate limit exceeded")
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

const limiterIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client. Buckets idle for
// limiterIdleTTL are dropped on the next sweep.
type clientLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &clientLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (c *clientLimiter) allow(client string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= limiterIdleTTL {
		c.sweep(now)
	}
	b, ok := c.buckets[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.buckets[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (c *clientLimiter) sweep(now time.Time) {
	for client, b := range c.buckets {
		if now.Sub(b.lastSeen) >= limiterIdleTTL {
			delete(c.buckets, client)
		}
	}
	c.lastSweep = now
}

// clientKey identifies the caller by remote address. Headers are not
// trusted: a caller could rotate them to get a fresh bucket.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerSessionID))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": code})
}

// byMethod routes one path to a handler per method.
func byMethod(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(handlers))
	for m := range handlers {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeError(w, http.StatusMethodNotAllowed, "method not allowed; use "+strings.Join(allowed, " or "))
			return
		}
		h(w, r)
	}
}

func methodAllowed(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed; use "+method)
	return false
}
