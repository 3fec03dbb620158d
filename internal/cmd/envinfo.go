package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/config"
	"github.com/throttlegate/throttlegate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		log.Info("=== throttlegate Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Server:         "+fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled), zap.Int("metrics_port", cfg.Metrics.Port))
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("")

		log.Info("Throttle:")
		log.Info(fmt.Sprintf("  Enabled:        %t", cfg.Throttle.Enabled), zap.Bool("throttle_enabled", cfg.Throttle.Enabled))
		log.Info(fmt.Sprintf("  Guest RPS:      %d", cfg.Throttle.GuestRPS), zap.Int("guest_rps", cfg.Throttle.GuestRPS))
		log.Info("  Token Header:   "+cfg.Throttle.Header, zap.String("header", cfg.Throttle.Header))
		log.Info(fmt.Sprintf("  Workers:        %d (queue %d)", cfg.Throttle.Workers, cfg.Throttle.QueueSize))
		log.Info("  Fetch Timeout:  " + cfg.Throttle.FetchTimeout.String())
		log.Info("")

		log.Info("Backends:")
		log.Info("  Directory:      "+cfg.Directory.Source, zap.String("directory_source", cfg.Directory.Source))
		if cfg.Directory.Source == config.SourceFile {
			log.Info("  Catalog:        "+cfg.Directory.File, zap.Bool("watch", cfg.Directory.Watch))
		}
		log.Info("  SLA:            "+cfg.SLA.Source, zap.String("sla_source", cfg.SLA.Source))
		if cfg.SLA.Source == config.SourceRedis {
			log.Info("  Redis:          "+cfg.SLA.Redis.Addr, zap.String("redis_addr", cfg.SLA.Redis.Addr))
		}
		if cfg.UsesStore() {
			log.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
			if strings.TrimSpace(cfg.Store.URL) != "" {
				log.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
			} else {
				log.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
