package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used by CLI commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger is used by the HTTP host and the admission engine
	// (STRUCTURED profile).
	ServerLogger *logging.Logger
)

// ServerLoggerOptions shapes the structured server logger.
type ServerLoggerOptions struct {
	Service     string
	Level       string
	Namespace   string
	Environment string
}

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger initializes the JSON server logger. The optional
// namespace is attached to every entry.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	opts := ServerLoggerOptions{Service: serviceName, Level: logLevel}
	if len(namespace) > 0 {
		opts.Namespace = namespace[0]
	}

	logger, err := NewServerLogger(opts)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServerLogger builds a structured logger without installing it.
func NewServerLogger(opts ServerLoggerOptions) (*logging.Logger, error) {
	staticFields := make(map[string]any)
	if opts.Namespace != "" {
		staticFields["namespace"] = opts.Namespace
	}
	environment := opts.Environment
	if environment == "" {
		environment = "production"
	}

	return logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  environment,
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: "json",
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
}

// Logger returns the server logger when the host is running, otherwise the
// CLI logger. It may return nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// SyncLoggers flushes both loggers. Sync errors on closed std streams are
// common and ignored.
func SyncLoggers() {
	for _, logger := range []*logging.Logger{ServerLogger, CLILogger} {
		if logger != nil {
			_ = logger.Sync()
		}
	}
}

// parseLogLevel maps a config level to a gofulmen severity name.
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr reports a fatal init error before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}
