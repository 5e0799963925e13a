package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omnara-ai/relay/internal/auth"
	"github.com/omnara-ai/relay/internal/config"
)

// Server wires the session registry, verifier, reaper, and rate limiter
// into an http.Handler exposing /agent, /terminal, /api/v1/sessions, and
// /health, the same assembly shape as the teacher's cmd/wtd main plus
// server.go (config in, mux out, graceful shutdown on the caller).
type Server struct {
	manager  *Manager
	verifier *auth.Verifier
	metrics  *Metrics
	logger   *zap.Logger
	limiter  *connLimiter

	allowedOriginPatterns []string

	mux *http.ServeMux
}

// NewServer assembles a Server from its dependencies. cfg supplies history
// sizing and allowed WebSocket origins; verifier authenticates both
// endpoints; metrics receives the counters and gauges the handlers update.
func NewServer(cfg config.RelayConfig, verifier *auth.Verifier, metrics *Metrics, logger *zap.Logger) *Server {
	s := &Server{
		manager:               NewManager(cfg.HistoryBytes),
		verifier:              verifier,
		metrics:               metrics,
		logger:                logger,
		limiter:               newConnLimiter(5, 10),
		allowedOriginPatterns: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/agent", s.serveUpstreamLimited)
	mux.HandleFunc("/terminal", s.serveViewerLimited)
	mux.HandleFunc("/api/v1/sessions", s.ServeSessionsList)
	mux.HandleFunc("/health", s.serveHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.mux = mux

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) serveUpstreamLimited(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(r.RemoteAddr) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	s.ServeUpstream(w, r)
}

func (s *Server) serveViewerLimited(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(r.RemoteAddr) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	s.ServeViewer(w, r)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}

// authenticate resolves the caller's credentials from either the
// X-Omnara-Api-Key header (a locally-verified API-key JWT) or a standard
// Authorization: Bearer header (resolved against the external identity
// service via the verifier's lookup, with a bounded TTL cache).
func (s *Server) authenticate(r *http.Request) (auth.Credentials, error) {
	if key := r.Header.Get("X-Omnara-Api-Key"); key != "" {
		return s.verifier.CredentialsFromAPIKey(key)
	}

	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		token := strings.TrimPrefix(authz, "Bearer ")
		return s.verifier.CredentialsFromBearer(r.Context(), token)
	}

	return auth.Credentials{}, auth.ErrMissingCredentials
}

// StartReaper launches the background session reaper with the given
// sweep interval and ended-session retention window, stopping when ctx is
// canceled.
func (s *Server) StartReaper(ctx context.Context, interval, retain time.Duration) {
	reaper := NewReaper(s.manager, interval, retain, s.logger, s.metrics)
	go reaper.Run(ctx)
}

// Manager exposes the session registry, for wiring the reaper or tests
// from outside the package.
func (s *Server) Manager() *Manager { return s.manager }
