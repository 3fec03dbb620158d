package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/observability"
	"github.com/throttlegate/throttlegate/internal/server/handlers"
)

// Admin signal endpoint rate limit.
const (
	adminSignalRate  = 10 // per minute
	adminSignalBurst = 5
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	if s.health {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)
	if s.throttleReg != nil {
		s.router.Method("GET", "/metrics/throttle", s.throttleReg)
	}

	s.router.With(s.admission()).Get("/greetings", handlers.GreetingsHandler)

	if s.profiler {
		s.router.Mount("/debug", middleware.Profiler())
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("pprof endpoints enabled", zap.String("path", "/debug/pprof"))
		}
	}

	s.registerAdminEndpoints()
}

// registerAdminEndpoints mounts the operator routes when an admin token is
// set. Both share the token; callers never pass through admission here.
func (s *Server) registerAdminEndpoints() {
	logger := observability.ServerLogger

	if s.adminToken == "" {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no admin token configured)")
		}
		return
	}

	var stats handlers.StatsSource
	if s.engine != nil {
		stats = s.engine
	}
	s.router.With(s.adminAuth()).Get("/admin/throttle", handlers.ThrottleStatsHandler(stats))

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.adminToken,
		RateLimit: adminSignalRate,
		RateBurst: adminSignalBurst,
		Manager:   nil, // default global manager
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.Strings("paths", []string{"/admin/signal", "/admin/throttle"}),
			zap.String("auth", "bearer token"),
			zap.Int("rate_per_minute", adminSignalRate),
			zap.Int("burst", adminSignalBurst))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
