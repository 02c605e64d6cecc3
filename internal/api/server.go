// Package api provides the HTTP API server for livefind.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/wesm/livefind/internal/config"
	"github.com/wesm/livefind/internal/scheduler"
	"github.com/wesm/livefind/internal/store"
)

// IndexStore defines the store operations the API needs.
type IndexStore interface {
	GetStats() (*store.Stats, error)
}

// IndexScheduler defines the scheduler operations the API needs.
type IndexScheduler interface {
	IsScheduled(root string) bool
	TriggerIndex(root string) error
	Status() []scheduler.RootStatus
	IsRunning() bool
}

// reapInterval is how often idle sessions are looked for.
const reapInterval = time.Minute

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	store       IndexStore
	scheduler   IndexScheduler
	sessions    *sessionManager
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter

	stopReaper chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server. sched may be nil when no re-index
// schedule is configured.
func NewServer(cfg *config.Config, st IndexStore, sched IndexScheduler, factory CoordinatorFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		store:      st,
		scheduler:  sched,
		sessions:   newSessionManager(factory),
		logger:     logger,
		stopReaper: make(chan struct{}),
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	if len(s.cfg.Server.CORSOrigins) > 0 {
		cors := DefaultCORSConfig()
		cors.AllowedOrigins = s.cfg.Server.CORSOrigins
		r.Use(CORSMiddleware(cors))
	}

	qps := s.cfg.Server.RateLimitQPS
	if qps <= 0 {
		qps = 20
	}
	s.rateLimiter = NewRateLimiter(qps, int(qps*2))
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		// The event stream is long-lived and must not be cut off by the
		// request timeout.
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Get("/stats", s.handleStats)

			r.Post("/sessions", s.handleCreateSession)
			r.Post("/sessions/{id}/query", s.handleSessionQuery)
			r.Get("/sessions/{id}/results", s.handleSessionResults)
			r.Delete("/sessions/{id}", s.handleCloseSession)

			r.Get("/scheduler/status", s.handleSchedulerStatus)
			r.Post("/index", s.handleTriggerIndex)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		if !isLoopback(bindAddr) {
			s.logger.Warn("API server listening on a non-loopback address without authentication", "addr", addr)
		} else {
			s.logger.Warn("API server running without authentication, set [server] api_key in config.toml")
		}
	}

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go s.reapSessions()

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) reapSessions() {
	t := time.NewTicker(reapInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n := s.sessions.reapIdle(); n > 0 {
				s.logger.Info("closed idle sessions", "count", n)
			}
		case <-s.stopReaper:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopReaper) })
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	s.sessions.closeAll()
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		key = strings.TrimPrefix(key, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
