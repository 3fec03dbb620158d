package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/core/throttle"
	errwrap "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/observability"
	"github.com/throttlegate/throttlegate/internal/output"
)

var (
	checkToken    string
	checkCount    int
	checkInterval time.Duration
	checkWait     bool
)

// checkResult is one simulated call.
type checkResult struct {
	Call     int           `json:"call"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Path     throttle.Path `json:"path"`
	Identity string        `json:"identity,omitempty"`
	Allowed  bool          `json:"allowed"`
	Error    string        `json:"error,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Simulate admission decisions for a token",
	Long: `Build the throttle engine from the current configuration and issue a
series of admission decisions for one token, printing the budget each call
was charged against.

With the default SLA latency the first calls for a known token borrow the
guest budget (path "fallback") until the limit fetch lands, after which they
are charged to the identity ("cached").`,
	Example: `  throttlegate check --count 20 --interval 100ms --token token2
  throttlegate check --count 15                       # guest budget`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}

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

		results := runChecks(ctx, gw.engine, checkToken, checkCount, checkInterval)

		if checkWait {
			identity := ""
			for _, r := range results {
				if r.Identity != "" {
					identity = r.Identity
					break
				}
			}
			if identity != "" {
				waitCtx, cancel := context.WithTimeout(ctx, cfg.Throttle.FetchTimeout+time.Second)
				err := gw.engine.Tracker().Wait(waitCtx, identity)
				cancel()
				if err != nil {
					observability.CLILogger.Warn("Limit fetch still pending", zap.String("identity", identity), zap.Error(err))
				}
			}
		}

		return writeReport(cmd, checkReport(checkToken, results, gw.engine.Stats()))
	},
}

// runChecks issues count decisions spaced by interval. An engine error is
// recorded on its row and does not stop the run.
func runChecks(ctx context.Context, engine *throttle.Engine, token string, count int, interval time.Duration) []checkResult {
	results := make([]checkResult, 0, count)
	start := time.Now()
	for i := 1; i <= count; i++ {
		if i > 1 && interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return results
			}
		}

		d, err := engine.Decide(token)
		result := checkResult{
			Call:     i,
			Elapsed:  time.Since(start),
			Path:     d.Path,
			Identity: d.Identity,
			Allowed:  d.Allowed,
		}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func checkReport(token string, results []checkResult, stats throttle.Stats) *output.Report {
	caller := token
	if caller == "" {
		caller = "guest"
	}

	report := &output.Report{
		Title:   fmt.Sprintf("Admission decisions for %s", caller),
		Columns: []string{"call", "time", "path", "identity", "allowed"},
		Data:    results,
	}

	admitted := 0
	for _, r := range results {
		status := fmt.Sprintf("%t", r.Allowed)
		if r.Error != "" {
			status = "error: " + r.Error
		}
		if r.Allowed {
			admitted++
		}
		identity := r.Identity
		if identity == "" {
			identity = "-"
		}
		path := string(r.Path)
		if path == "" {
			path = "-"
		}
		report.AddRow(r.Call, r.Elapsed.Round(time.Millisecond), path, identity, status)
	}
	report.Summary = fmt.Sprintf("%d/%d admitted, %d pending", admitted, len(results), stats.Pending)
	return report
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkToken, "token", "", "caller token (empty is a guest)")
	checkCmd.Flags().IntVarP(&checkCount, "count", "n", 15, "number of decisions to issue")
	checkCmd.Flags().DurationVar(&checkInterval, "interval", 100*time.Millisecond, "delay between decisions")
	checkCmd.Flags().BoolVar(&checkWait, "wait", false, "wait for a pending limit fetch before printing")
	addOutputFlags(checkCmd)
}
