//go:build cgo

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/throttlegate/throttlegate/internal/config"
	"github.com/throttlegate/throttlegate/internal/core"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestLibsqlStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/throttlegate.db",
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.UpsertToken(ctx, "token2", "user2", ""))
	require.NoError(t, store.UpsertLimit(ctx, core.Limit{Identity: "user2", RPS: 2}))

	tokens, err := store.LoadTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, "user2", tokens["token2"])

	limit, err := store.FetchLimit(ctx, "user2")
	require.NoError(t, err)
	require.Equal(t, 2, limit.RPS)
}
