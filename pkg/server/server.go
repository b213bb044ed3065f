// Package server exposes the reasoning store over HTTP.
//
// The API is JSON over a plain net/http mux. Publishing and querying run
// against an embedded aime.DB; when authentication is enabled every /v1
// route requires a bearer token and publishing requires the admin role.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rivadaviam/AI.me/pkg/aime"
	"github.com/rivadaviam/AI.me/pkg/auth"
)

// ErrServerClosed is returned by Start after Stop.
var ErrServerClosed = errors.New("server closed")

// Config holds HTTP server settings.
type Config struct {
	Address string
	Port    int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:      "0.0.0.0",
		Port:         8484,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is the HTTP front end.
type Server struct {
	config *Config
	db     *aime.DB

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// New creates a server over db. A nil config uses defaults.
func New(db *aime.DB, config *Config) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{config: config, db: db}, nil
}

// Start begins listening. It returns once the listener is bound; serving
// continues in the background until Stop.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
}

// Handler builds the full route table with middleware applied. Exposed
// for tests via httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	if s.db.Auth() != nil {
		mux.HandleFunc("POST /v1/auth/token", s.handleToken)
		mux.HandleFunc("POST /v1/auth/revoke", s.withAuth(s.handleRevoke, auth.RoleReader))
	}

	mux.HandleFunc("GET /v1/graphs", s.withAuth(s.handleGraphs, auth.RoleReader))
	mux.HandleFunc("POST /v1/graphs/{id}/versions", s.withAuth(s.handlePublish, auth.RoleAdmin))
	mux.HandleFunc("GET /v1/graphs/{id}/versions", s.withAuth(s.handleVersions, auth.RoleReader))
	mux.HandleFunc("GET /v1/graphs/{id}/diff", s.withAuth(s.handleDiff, auth.RoleReader))
	mux.HandleFunc("POST /v1/query", s.withAuth(s.handleQuery, auth.RoleReader))
	mux.HandleFunc("GET /v1/audit/trace", s.withAuth(s.handleTrace, auth.RoleReader))
	mux.HandleFunc("GET /v1/audit/events", s.withAuth(s.handleEvents, auth.RoleReader))

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// withAuth gates a handler behind bearer-token auth. When auth is
// disabled the handler runs as-is. RoleAdmin implies RoleReader access
// everywhere; RoleReader cannot reach RoleAdmin routes.
func (s *Server) withAuth(handler http.HandlerFunc, required auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := s.db.Auth()
		if a == nil {
			handler(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		u, err := a.ValidateToken(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if required == auth.RoleAdmin && u.Role != auth.RoleAdmin {
			s.writeError(w, http.StatusForbidden, "admin role required")
			return
		}

		handler(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.requestCount.Add(1)
		if wrapped.status >= 500 {
			s.errorCount.Add(1)
		}
		if r.URL.Path != "/health" {
			fmt.Printf("%s %s %d %v\n", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				fmt.Printf("PANIC: %v\n%s\n", err, buf[:n])

				s.errorCount.Add(1)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
