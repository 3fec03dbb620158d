package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/observability"
	"github.com/throttlegate/throttlegate/internal/output"
	"github.com/throttlegate/throttlegate/internal/server/handlers"
)

var healthTimeout time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Load the configuration, build the throttle engine with its configured
backends and probe each of them, the same checks /health runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}

		gw, err := buildGateway(ctx, cfg, observability.CLILogger, nil)
		if err != nil {
			return err
		}
		defer gw.Close()

		report, failed := probeCheckers(ctx, gw.healthCheckers(), healthTimeout)
		if werr := writeReport(cmd, report); werr != nil {
			return werr
		}
		if failed > 0 {
			return errwrap.NewServiceUnavailableError(fmt.Sprintf("%d health checks failed", failed))
		}
		observability.CLILogger.Debug("All health checks passed", zap.Int("checks", len(report.Rows)))
		return nil
	},
}

// probeCheckers runs each checker under timeout, in name order.
func probeCheckers(ctx context.Context, checkers map[string]handlers.HealthChecker, timeout time.Duration) (*output.Report, int) {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &output.Report{
		Title:   "Health",
		Columns: []string{"check", "status", "latency", "detail"},
	}
	failed := 0
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := checkers[name].CheckHealth(checkCtx)
		cancel()

		status, detail := handlers.StatusHealthy, ""
		if err != nil {
			status, detail = handlers.StatusUnhealthy, err.Error()
			failed++
		}
		report.AddRow(name, status, time.Since(start).Round(time.Microsecond), detail)
	}
	report.Summary = fmt.Sprintf("%d/%d healthy", len(names)-failed, len(names))
	return report, failed
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "per-check timeout")
	addOutputFlags(healthCmd)
}
