package cmd

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/config"
	errwrap "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/metrics"
	"github.com/throttlegate/throttlegate/internal/observability"
	"github.com/throttlegate/throttlegate/internal/server"
	"github.com/throttlegate/throttlegate/internal/server/handlers"
)

// adminTokenEnv enables POST /admin/signal when set.
const adminTokenEnv = config.EnvPrefix + "_ADMIN_TOKEN"

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission-controlled HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

GET /greetings is admitted through the throttle engine using the token
header. /metrics/throttle exposes engine state; /admin/throttle does too
when server.admin_token is set, behind the same bearer token as
/admin/signal.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config and token directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}

		namespace := config.AppName
		level := cfg.Logging.Level
		if cfg.Debug.Enabled {
			level = "debug"
		}
		observability.InitServerLogger(config.AppName, level, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		recorder := metrics.NewThrottleRecorder(namespace)
		gw, err := buildGateway(ctx, cfg, logger, recorder)
		if err != nil {
			logger.Error("Failed to build throttle engine", zap.Error(err))
			return err
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("throttle_enabled", cfg.Throttle.Enabled),
			zap.String("token_header", cfg.Throttle.Header))

		hm := handlers.InitHealthManager(versionInfo.Version)
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		for name, checker := range gw.healthCheckers() {
			hm.RegisterChecker(name, checker)
		}

		opts := []server.Option{
			server.WithThrottleMetrics(recorder.Handler()),
			server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
			server.WithAdminToken(os.Getenv(adminTokenEnv)),
			server.WithProfiler(cfg.Debug.PprofEnabled),
			server.WithHealthEndpoints(cfg.Health.Enabled),
		}
		if cfg.Throttle.Enabled {
			opts = append(opts, server.WithAdmission(gw.engine, cfg.Throttle.Header))
		} else {
			logger.Warn("Admission control disabled; every request is admitted")
		}
		srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, then engine and backends,
		// then the logger flush.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			observability.SyncLoggers()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping throttle engine...")
			gw.Close()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading configuration")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					logger.Error("Failed to reload config file",
						zap.String("file", viper.ConfigFileUsed()),
						zap.Error(err))
					metrics.RecordOperation("config_reload", false)
					return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
				}
			}

			next, err := loadConfig()
			if err != nil {
				logger.Error("Reloaded configuration is invalid; keeping current tables", zap.Error(err))
				metrics.RecordOperation("config_reload", false)
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			metrics.RecordOperation("config_reload", true)

			if err := gw.Reload(ctx, next); err != nil {
				logger.Error("Failed to reload token directory", zap.Error(err))
				return err
			}
			logger.Info("Configuration reloaded",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Int("tokens", gw.tokens.Len()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			gw.Close()
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().Int("guest-rps", 10, "guest requests per second")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("throttle.guest_rps", serveCmd.Flags().Lookup("guest-rps"))
}
