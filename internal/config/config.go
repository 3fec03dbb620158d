package config

import "time"

// Config represents the complete application configuration.
// Precedence, highest first: flags, THROTTLEGATE_* environment, config file,
// then the defaults registered by SetDefaults.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Directory DirectoryConfig `mapstructure:"directory"`
	SLA       SLAConfig       `mapstructure:"sla"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration.
// Driver is "libsql" (local file or Turso URL) or "sqlite" (cgo-free file).
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ThrottleConfig tunes the admission engine.
type ThrottleConfig struct {
	// Enabled turns the admission middleware on. When false every request
	// passes untouched.
	Enabled bool `mapstructure:"enabled"`

	// GuestRPS is the shared per-second budget for anonymous callers and for
	// identities whose limit is still being fetched.
	GuestRPS int `mapstructure:"guest_rps"`

	// Header names the request header carrying the caller token.
	Header string `mapstructure:"header"`

	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`

	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`

	// DispatchRate caps limit fetches started per second. Zero is unlimited.
	DispatchRate  float64 `mapstructure:"dispatch_rate"`
	DispatchBurst int     `mapstructure:"dispatch_burst"`
}

// DirectoryConfig selects where token to identity mappings come from.
type DirectoryConfig struct {
	// Source is one of "config", "file" or "store".
	Source string            `mapstructure:"source"`
	File   string            `mapstructure:"file"`
	Watch  bool              `mapstructure:"watch"`
	Tokens map[string]string `mapstructure:"tokens"`
}

// SLAConfig selects where per-identity limits come from.
type SLAConfig struct {
	// Source is one of "config", "file", "store" or "redis".
	Source  string         `mapstructure:"source"`
	Latency time.Duration  `mapstructure:"latency"`
	Limits  map[string]int `mapstructure:"limits"`
	Redis   RedisConfig    `mapstructure:"redis"`
}

// RedisConfig locates the Redis SLA backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether the /health endpoints are mounted
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
