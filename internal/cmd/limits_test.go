package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throttlegate/throttlegate/internal/config"
	"github.com/throttlegate/throttlegate/internal/core"
	"github.com/throttlegate/throttlegate/internal/core/store"
)

func TestStoreLimitsWriter(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "throttlegate.db"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	var w limitWriter = storeLimits{db: db}
	defer w.Close() // nolint:errcheck // test cleanup

	require.NoError(t, w.UpsertOrSet(ctx, core.Limit{Identity: "user1", RPS: 1}))
	require.NoError(t, w.UpsertOrSet(ctx, core.Limit{Identity: "user1", RPS: 5}))

	entries, err := db.ListLimits(ctx)
	require.NoError(t, err)
	report := limitsReport(entries)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "user1", report.Rows[0][0])
	assert.Equal(t, "5", report.Rows[0][1])
	assert.Equal(t, "1 identities", report.Summary)

	removed, err := w.Remove(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = w.Remove(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, removed)
}
