package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/config"
	"github.com/throttlegate/throttlegate/internal/core/store"
	errwrap "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/metrics"
	"github.com/throttlegate/throttlegate/internal/observability"
)

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (*store.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, errwrap.WrapDatabaseError(ctx, err, "open store")
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, errwrap.WrapDatabaseError(ctx, err, "migrate store")
	}
	return db, nil
}

// storeLocation returns the URL or absolute file path of the configured store.
func storeLocation() string {
	cfg := config.GetConfig()
	if cfg == nil {
		return config.DefaultStorePath()
	}
	if cfg.Store.URL != "" {
		return cfg.Store.URL
	}
	path := cfg.Store.Path
	if path == "" {
		path = config.DefaultStorePath()
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the token and SLA store",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			metrics.RecordOperation("store_migrate", false)
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		metrics.RecordOperation("store_migrate", true)
		observability.CLILogger.Info("Store schema up to date",
			zap.String("driver", db.Driver()),
			zap.String("database", storeLocation()))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Store migrated: %s (%s)\n", storeLocation(), db.Driver())
		return err
	},
}

func init() {
	storeCmd.AddCommand(storeMigrateCmd)
	rootCmd.AddCommand(storeCmd)
}
