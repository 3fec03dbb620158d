package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/core/throttle"
	apperrors "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/observability"
	"github.com/throttlegate/throttlegate/internal/server/handlers"
	servermw "github.com/throttlegate/throttlegate/internal/server/middleware"
)

// Default HTTP timeouts.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
)

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int

	engine      *throttle.Engine
	tokenHeader string
	throttleReg http.Handler

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	adminToken   string
	profiler     bool
	health       bool
}

// Option configures a Server.
type Option func(*Server)

// WithAdmission guards the protected routes with engine. header names the
// token header; empty selects the default.
func WithAdmission(engine *throttle.Engine, header string) Option {
	return func(s *Server) {
		s.engine = engine
		s.tokenHeader = header
	}
}

// WithThrottleMetrics mounts h at /metrics/throttle.
func WithThrottleMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.throttleReg = h
	}
}

// WithTimeouts overrides the HTTP timeouts. Zero values keep the defaults.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
	}
}

// WithAdminToken enables POST /admin/signal behind bearer auth.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

// WithProfiler mounts net/http/pprof under /debug.
func WithProfiler(enabled bool) Option {
	return func(s *Server) {
		s.profiler = enabled
	}
}

// WithHealthEndpoints controls whether /health and its probes are mounted.
func WithHealthEndpoints(enabled bool) Option {
	return func(s *Server) {
		s.health = enabled
	}
}

// New creates a new HTTP server instance
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		idleTimeout:  DefaultIdleTimeout,
		health:       true,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// RequestID first so every later layer can correlate; Recovery last so
	// a panic still passes through metrics.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s.router = r

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// admission builds the admission middleware. Rejections and engine errors
// are written as standard error envelopes.
func (s *Server) admission() func(http.Handler) http.Handler {
	var gate servermw.Admitter
	if s.engine != nil {
		gate = s.engine
	}
	return servermw.Admission(gate, servermw.AdmissionConfig{
		Header: s.tokenHeader,
		OnReject: func(w http.ResponseWriter, r *http.Request) {
			apperrors.RespondWithEnvelope(w, r, apperrors.NewTooManyRequestsError("Request rate exceeded"))
		},
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			apperrors.RespondWithEnvelope(w, r, apperrors.FromAdmissionError(r.Context(), err))
		},
	})
}

// adminAuth guards operator routes with the admin bearer token.
func (s *Server) adminAuth() func(http.Handler) http.Handler {
	return servermw.BearerAuth(s.adminToken, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		apperrors.RespondWithEnvelope(w, r, apperrors.NewUnauthorizedError("Admin token required"))
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.host),
			zap.Int("port", s.port),
			zap.String("addr", addr),
			zap.Bool("admission", s.engine != nil))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
