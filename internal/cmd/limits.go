package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/throttlegate/throttlegate/internal/core"
	"github.com/throttlegate/throttlegate/internal/core/sla"
	"github.com/throttlegate/throttlegate/internal/core/store"
	errwrap "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/output"
)

var limitsUseRedis bool

// limitWriter is implemented by the store and the Redis SLA backend.
type limitWriter interface {
	UpsertOrSet(ctx context.Context, limit core.Limit) error
	Remove(ctx context.Context, identity string) (bool, error)
	Close() error
}

type storeLimits struct{ db *store.Store }

func (s storeLimits) UpsertOrSet(ctx context.Context, limit core.Limit) error {
	return s.db.UpsertLimit(ctx, limit)
}

func (s storeLimits) Remove(ctx context.Context, identity string) (bool, error) {
	return s.db.DeleteLimit(ctx, identity)
}

func (s storeLimits) Close() error { return s.db.Close() }

type redisLimits struct {
	client *redis.Client
	source *sla.Redis
}

func (r redisLimits) UpsertOrSet(ctx context.Context, limit core.Limit) error {
	return r.source.SetLimit(ctx, limit)
}

func (r redisLimits) Remove(ctx context.Context, identity string) (bool, error) {
	if err := r.source.DeleteLimit(ctx, identity); err != nil {
		return false, err
	}
	return true, nil
}

func (r redisLimits) Close() error { return r.client.Close() }

// openLimitWriter opens the store, or Redis when --redis is set.
func openLimitWriter(ctx context.Context) (limitWriter, error) {
	if !limitsUseRedis {
		db, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		return storeLimits{db: db}, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
	}
	rc := cfg.SLA.Redis
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	source := sla.NewRedis(client, sla.WithPrefix(rc.Prefix))

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := source.CheckHealth(pingCtx); err != nil {
		_ = client.Close()
		return nil, errwrap.WrapServiceUnavailable(ctx, err, "redis unavailable")
	}
	return redisLimits{client: client, source: source}, nil
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-identity SLA limits",
	Long: `Manage requests-per-second limits for identities. Limits live in the
database (sla.source "store") or, with --redis, in Redis hashes
(sla.source "redis"). Identities already cached by a running server keep
their current limit.`,
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListLimits(cmd.Context())
		if err != nil {
			return err
		}
		return writeReport(cmd, limitsReport(entries))
	},
}

var limitsSetCmd = &cobra.Command{
	Use:   "set <identity> <rps>",
	Short: "Set an identity's requests-per-second limit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rps, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return fmt.Errorf("rps must be an integer: %w", err)
		}
		limit := core.Limit{Identity: strings.TrimSpace(args[0]), RPS: rps}
		if err := limit.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		w, err := openLimitWriter(ctx)
		if err != nil {
			return err
		}
		defer w.Close() // nolint:errcheck // best-effort cleanup

		if err := w.UpsertOrSet(ctx, limit); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s limited to %d rps\n", limit.Identity, limit.RPS)
		return err
	},
}

var limitsDeleteCmd = &cobra.Command{
	Use:   "delete <identity>",
	Short: "Remove an identity's limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		w, err := openLimitWriter(ctx)
		if err != nil {
			return err
		}
		defer w.Close() // nolint:errcheck // best-effort cleanup

		removed, err := w.Remove(ctx, strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: %s", core.ErrLimitNotFound, args[0])
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "Limit removed")
		return err
	},
}

func limitsReport(entries []store.LimitEntry) *output.Report {
	report := &output.Report{
		Title:   "SLA limits",
		Columns: []string{"identity", "rps", "updated"},
		Empty:   "(no limits stored)",
	}
	data := make(map[string]int, len(entries))
	for _, e := range entries {
		report.AddRow(e.Limit.Identity, e.Limit.RPS, formatTime(e.UpdatedAt))
		data[e.Limit.Identity] = e.Limit.RPS
	}
	report.Data = data
	report.Summary = fmt.Sprintf("%d identities", len(entries))
	return report
}

func init() {
	addOutputFlags(limitsListCmd)
	limitsSetCmd.Flags().BoolVar(&limitsUseRedis, "redis", false, "write to the Redis SLA backend instead of the store")
	limitsDeleteCmd.Flags().BoolVar(&limitsUseRedis, "redis", false, "delete from the Redis SLA backend instead of the store")

	limitsCmd.AddCommand(limitsListCmd, limitsSetCmd, limitsDeleteCmd)
	rootCmd.AddCommand(limitsCmd)
}
