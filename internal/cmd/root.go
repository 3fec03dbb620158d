package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/config"
	"github.com/throttlegate/throttlegate/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Per-identity request admission gateway",
	Long: `throttlegate admits or rejects requests against per-second budgets.

Anonymous callers share a guest budget. Callers presenting a token are
charged against the SLA of the identity the token maps to; while that SLA
is still being fetched they borrow the guest budget.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/throttlegate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading THROTTLEGATE_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig registers defaults, environment and the config file on the
// global viper instance.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)
	logger := observability.CLILogger

	if err := config.LoadDotEnv(envFile); err != nil {
		logger.Warn("Ignoring unreadable dotenv file", zap.String("path", envFile), zap.Error(err))
	}

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir := config.DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Debug("No config file found, using defaults and environment variables")
			return
		}
		if cfgFile != "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to read config file", err)
		}
		logger.Warn("Error reading config file", zap.Error(err))
		return
	}
	logger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
}

// loadConfig decodes and validates the global viper state.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
