// Package http serves the local monitor API: health, metrics, background
// jobs with progress streaming, and deep-dive lookups.
package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/deepdive"
	"github.com/sawpanic/cryptovat/internal/jobs"
	"github.com/sawpanic/cryptovat/internal/metrics"
	"github.com/sawpanic/cryptovat/internal/persistence"
	"github.com/sawpanic/cryptovat/internal/pipeline"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// UserHeader identifies the caller; one job may run per user.
const UserHeader = "X-User-ID"

// Scanner runs the spot scan and the cross-market analysis.
type Scanner interface {
	ScanSpot(ctx context.Context, userID string, prog pipeline.Progress) (*pipeline.SpotResult, error)
	Analyze(ctx context.Context, userID string, req pipeline.AnalyzeRequest, prog pipeline.Progress) (*pipeline.AnalyzeResult, error)
}

// DeepDiver looks up a single coin.
type DeepDiver interface {
	Lookup(ctx context.Context, coinID string) (deepdive.Report, error)
}

// Services are the collaborators behind the routes. Metrics, DeepDive and
// Health may be nil.
type Services struct {
	Jobs     *jobs.Runner
	Scanner  Scanner
	DeepDive DeepDiver
	Metrics  *metrics.Registry
	Health   persistence.RepositoryHealth
}

// Server represents the monitor HTTP server
type Server struct {
	router    *mux.Router
	server    *http.Server
	svc       Services
	config    ServerConfig
	startTime time.Time

	// jobCtx outlives requests; jobs are cancelled through the runner
	jobCtx context.Context

	mu      sync.Mutex
	results map[string]interface{}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	InputDir       string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig(c config.ServerConfig) ServerConfig {
	return ServerConfig{
		Host:           c.Host,
		Port:           c.Port,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0, // progress streams are long-lived
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 30 * time.Second,
		InputDir:       c.InputDir,
	}
}

// NewServer creates a new HTTP server instance
func NewServer(cfg ServerConfig, svc Services) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		svc:       svc,
		config:    cfg,
		startTime: time.Now(),
		jobCtx:    context.Background(),
		results:   make(map[string]interface{}),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	if s.svc.Metrics != nil {
		s.router.Handle("/metrics", s.svc.Metrics.Handler()).Methods("GET")
	}

	// Streams are exempt from the request timeout
	s.router.HandleFunc("/jobs/{id}/stream", s.streamJob).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.health).Methods("GET")
	api.HandleFunc("/jobs/spot", s.startSpot).Methods("POST")
	api.HandleFunc("/jobs/analyze", s.startAnalyze).Methods("POST")
	api.HandleFunc("/jobs/{id}", s.getJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.cancelJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id}/logs", s.jobLogs).Methods("GET")
	api.HandleFunc("/deep-dive/{coin}", s.deepDive).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
	})
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("took", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware allows local origins only
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); isLocalOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.Address()).Msg("Starting monitor server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and cancels running jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down monitor server")
	err := s.server.Shutdown(ctx)
	if s.svc.Jobs != nil {
		if jerr := s.svc.Jobs.Shutdown(ctx); err == nil {
			err = jerr
		}
	}
	return err
}

// Address returns the listen address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) storeResult(jobID string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = v
}

func (s *Server) result(jobID string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[jobID]
}

func isLocalOrigin(origin string) bool {
	return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
