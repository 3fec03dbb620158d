package cmd

import (
	"context"
	"sync"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/config"
	"github.com/throttlegate/throttlegate/internal/core/directory"
	"github.com/throttlegate/throttlegate/internal/core/sla"
	"github.com/throttlegate/throttlegate/internal/core/store"
	"github.com/throttlegate/throttlegate/internal/core/throttle"
	apperrors "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/metrics"
	"github.com/throttlegate/throttlegate/internal/server/handlers"
)

// gateway owns the engine and every backend it was built from.
type gateway struct {
	cfg    *config.Config
	logger *logging.Logger

	engine    *throttle.Engine
	tokens    *directory.Static
	resolver  throttle.IdentityResolver
	limits    throttle.LimitSource
	staticSLA *sla.Static

	store   *store.Store
	redis   *redis.Client
	watcher *directory.Watcher

	closeOnce sync.Once
}

// buildGateway wires the directory and SLA backends selected in cfg into a
// running engine. recorder may be nil.
func buildGateway(ctx context.Context, cfg *config.Config, logger *logging.Logger, recorder *metrics.ThrottleRecorder) (*gateway, error) {
	g := &gateway{cfg: cfg, logger: logger}

	if cfg.UsesStore() {
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, apperrors.WrapDatabaseError(ctx, err, "open store")
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, apperrors.WrapDatabaseError(ctx, err, "migrate store")
		}
		g.store = db
	}

	var catalog *directory.Catalog
	if cfg.Directory.Source == config.SourceFile || cfg.SLA.Source == config.SourceFile {
		loaded, err := directory.LoadCatalog(cfg.Directory.File)
		if err != nil {
			g.Close()
			return nil, apperrors.WrapConfigInvalid(ctx, err, "load catalog")
		}
		catalog = loaded
	}

	if err := g.buildDirectory(ctx, catalog); err != nil {
		g.Close()
		return nil, err
	}
	g.buildLimitSource(catalog)

	opts := []throttle.Option{throttle.WithLogger(logger)}
	if recorder != nil {
		opts = append(opts, throttle.WithRecorder(recorder))
	}
	engine, err := throttle.New(engineConfig(cfg.Throttle), g.resolver, g.limits, opts...)
	if err != nil {
		g.Close()
		return nil, apperrors.WrapConfigInvalid(ctx, err, "build throttle engine")
	}
	g.engine = engine

	if cfg.Directory.Watch && catalog != nil {
		watcher, err := directory.Watch(cfg.Directory.File, g.applyCatalog, logger)
		if err != nil {
			g.Close()
			return nil, apperrors.WrapConfigInvalid(ctx, err, "watch catalog")
		}
		g.watcher = watcher
	}

	if logger != nil {
		logger.Info("Throttle engine ready",
			zap.String("directory_source", cfg.Directory.Source),
			zap.String("sla_source", cfg.SLA.Source),
			zap.Int("tokens", g.tokens.Len()),
			zap.Int("guest_rps", cfg.Throttle.GuestRPS),
			zap.Bool("watch", g.watcher != nil))
	}
	return g, nil
}

func engineConfig(tc config.ThrottleConfig) throttle.Config {
	return throttle.Config{
		GuestRPS:        tc.GuestRPS,
		Workers:         tc.Workers,
		QueueSize:       tc.QueueSize,
		DispatchRate:    tc.DispatchRate,
		DispatchBurst:   tc.DispatchBurst,
		FetchTimeout:    tc.FetchTimeout,
		RetryBackoff:    tc.RetryBackoff,
		RetryBackoffMax: tc.RetryBackoffMax,
	}
}

func (g *gateway) buildDirectory(ctx context.Context, catalog *directory.Catalog) error {
	switch g.cfg.Directory.Source {
	case config.SourceFile:
		g.tokens = directory.NewStatic(catalog.Tokens)
	case config.SourceStore:
		tokens, err := g.store.LoadTokens(ctx)
		if err != nil {
			return apperrors.WrapDatabaseError(ctx, err, "load tokens")
		}
		g.tokens = directory.NewStatic(tokens)
	default:
		g.tokens = directory.NewStatic(g.cfg.Directory.Tokens)
	}
	g.resolver = g.tokens
	return nil
}

func (g *gateway) buildLimitSource(catalog *directory.Catalog) {
	switch g.cfg.SLA.Source {
	case config.SourceFile:
		g.staticSLA = sla.NewStatic(catalog.Limits, g.cfg.SLA.Latency)
		g.limits = g.staticSLA
	case config.SourceStore:
		g.limits = g.store
	case config.SourceRedis:
		rc := g.cfg.SLA.Redis
		g.redis = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		g.limits = sla.NewRedis(g.redis, sla.WithPrefix(rc.Prefix))
	default:
		g.staticSLA = sla.NewStatic(g.cfg.SLA.Limits, g.cfg.SLA.Latency)
		g.limits = g.staticSLA
	}
}

// applyCatalog installs a reloaded catalog. Identities already cached keep
// their counters; only new resolutions see changed limits.
func (g *gateway) applyCatalog(catalog *directory.Catalog) {
	if g.cfg.Directory.Source == config.SourceFile {
		g.tokens.Replace(catalog.Tokens)
	}
	if g.staticSLA != nil && g.cfg.SLA.Source == config.SourceFile {
		g.staticSLA.Replace(catalog.Limits)
	}
	metrics.RecordOperation("catalog_reload", true)
	if g.logger != nil {
		g.logger.Info("Catalog reloaded",
			zap.String("file", g.cfg.Directory.File),
			zap.Int("tokens", len(catalog.Tokens)),
			zap.Int("limits", len(catalog.Limits)))
	}
}

// Reload re-reads the token directory and limit table from their backing
// source. Config-sourced tables come from next.
func (g *gateway) Reload(ctx context.Context, next *config.Config) error {
	switch g.cfg.Directory.Source {
	case config.SourceStore:
		tokens, err := g.store.LoadTokens(ctx)
		if err != nil {
			metrics.RecordOperation("directory_reload", false)
			return apperrors.WrapDatabaseError(ctx, err, "reload tokens")
		}
		g.tokens.Replace(tokens)
	case config.SourceFile:
		catalog, err := directory.LoadCatalog(g.cfg.Directory.File)
		if err != nil {
			metrics.RecordOperation("directory_reload", false)
			return apperrors.WrapConfigInvalid(ctx, err, "reload catalog")
		}
		g.applyCatalog(catalog)
	default:
		if next != nil {
			g.tokens.Replace(next.Directory.Tokens)
		}
	}

	if next != nil && g.staticSLA != nil && g.cfg.SLA.Source == config.SourceConfig {
		g.staticSLA.Replace(next.SLA.Limits)
	}
	metrics.RecordOperation("directory_reload", true)
	return nil
}

// healthCheckers lists the components the health endpoints should probe.
func (g *gateway) healthCheckers() map[string]handlers.HealthChecker {
	checkers := map[string]handlers.HealthChecker{
		"throttle_engine": g.engine,
	}
	if g.store != nil {
		checkers["store"] = g.store
	}
	if source, ok := g.limits.(*sla.Redis); ok {
		checkers["sla_redis"] = source
	}
	return checkers
}

// Close stops the watcher and the engine, then releases the backends.
func (g *gateway) Close() {
	g.closeOnce.Do(func() {
		if g.watcher != nil {
			_ = g.watcher.Close()
		}
		if g.engine != nil {
			g.engine.Close()
		}
		if g.redis != nil {
			_ = g.redis.Close()
		}
		if g.store != nil {
			_ = g.store.Close()
		}
	})
}
