// Package config provides centralized configuration management for
// throttlegate. Defaults are registered on a viper instance, overlaid by the
// config file and THROTTLEGATE_* environment, then decoded into Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppName names the XDG config and data directories.
const AppName = "throttlegate"

// EnvPrefix is the environment variable prefix (THROTTLEGATE_SERVER_PORT etc).
const EnvPrefix = "THROTTLEGATE"

// Directory and SLA sources.
const (
	SourceConfig = "config"
	SourceFile   = "file"
	SourceStore  = "store"
	SourceRedis  = "redis"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Throttle defaults
	v.SetDefault("throttle.enabled", true)
	v.SetDefault("throttle.guest_rps", 10)
	v.SetDefault("throttle.header", "token")
	v.SetDefault("throttle.workers", 4)
	v.SetDefault("throttle.queue_size", 256)
	v.SetDefault("throttle.fetch_timeout", "5s")
	v.SetDefault("throttle.retry_backoff", "0s")
	v.SetDefault("throttle.retry_backoff_max", "30s")
	v.SetDefault("throttle.dispatch_rate", 0)
	v.SetDefault("throttle.dispatch_burst", 1)

	// Demo directory and SLA table
	v.SetDefault("directory.source", SourceConfig)
	v.SetDefault("directory.file", "")
	v.SetDefault("directory.watch", false)
	v.SetDefault("directory.tokens", map[string]any{
		"token11": "user1",
		"token12": "user1",
		"token2":  "user2",
	})
	v.SetDefault("sla.source", SourceConfig)
	v.SetDefault("sla.latency", "1500ms")
	v.SetDefault("sla.limits", map[string]any{
		"user1": 1,
		"user2": 2,
	})
	v.SetDefault("sla.redis.addr", "localhost:6379")
	v.SetDefault("sla.redis.password", "")
	v.SetDefault("sla.redis.db", 0)
	v.SetDefault("sla.redis.prefix", "throttlegate:sla")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// BindEnv makes every key readable from THROTTLEGATE_<SECTION>_<KEY>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load decodes v into a Config, validates it and publishes it via GetConfig.
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	cfg.Directory.Source = strings.ToLower(strings.TrimSpace(cfg.Directory.Source))
	cfg.SLA.Source = strings.ToLower(strings.TrimSpace(cfg.SLA.Source))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Throttle.GuestRPS <= 0 {
		return fmt.Errorf("throttle.guest_rps must be positive, got %d", c.Throttle.GuestRPS)
	}
	if strings.TrimSpace(c.Throttle.Header) == "" {
		return errors.New("throttle.header is required")
	}
	if c.Throttle.Workers < 0 || c.Throttle.QueueSize < 0 {
		return errors.New("throttle.workers and throttle.queue_size must not be negative")
	}
	if c.Throttle.RetryBackoff < 0 || c.Throttle.RetryBackoffMax < 0 || c.Throttle.FetchTimeout < 0 {
		return errors.New("throttle durations must not be negative")
	}

	switch c.Directory.Source {
	case SourceConfig, SourceStore:
	case SourceFile:
		if strings.TrimSpace(c.Directory.File) == "" {
			return errors.New("directory.file is required when directory.source is file")
		}
	default:
		return fmt.Errorf("unsupported directory.source: %q", c.Directory.Source)
	}

	switch c.SLA.Source {
	case SourceConfig, SourceStore:
	case SourceFile:
		if strings.TrimSpace(c.Directory.File) == "" {
			return errors.New("directory.file is required when sla.source is file")
		}
	case SourceRedis:
		if strings.TrimSpace(c.SLA.Redis.Addr) == "" {
			return errors.New("sla.redis.addr is required when sla.source is redis")
		}
	default:
		return fmt.Errorf("unsupported sla.source: %q", c.SLA.Source)
	}

	for identity, rps := range c.SLA.Limits {
		if rps <= 0 {
			return fmt.Errorf("sla.limits.%s must be positive, got %d", identity, rps)
		}
	}
	return nil
}

// UsesStore reports whether any configured source reads from the store.
func (c *Config) UsesStore() bool {
	return c.Directory.Source == SourceStore || c.SLA.Source == SourceStore
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
