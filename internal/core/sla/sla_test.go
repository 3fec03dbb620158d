package sla

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/throttlegate/throttlegate/internal/core"
)

func TestStaticFetchLimit(t *testing.T) {
	src := NewStatic(map[string]int{"user1": 1, "user2": 2}, 0)

	limit, err := src.FetchLimit(context.Background(), "user2")
	require.NoError(t, err)
	require.Equal(t, core.Limit{Identity: "user2", RPS: 2}, limit)

	_, err = src.FetchLimit(context.Background(), "user9")
	require.ErrorIs(t, err, core.ErrLimitNotFound)
}

func TestStaticLatencyHonorsContext(t *testing.T) {
	src := NewStatic(map[string]int{"user1": 1}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := src.FetchLimit(ctx, "user1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestStaticLatencyDelaysAnswer(t *testing.T) {
	src := NewStatic(map[string]int{"user1": 1}, 30*time.Millisecond)

	start := time.Now()
	_, err := src.FetchLimit(context.Background(), "user1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestStaticReplace(t *testing.T) {
	src := NewStatic(map[string]int{"user1": 1}, 0)
	src.Replace(map[string]int{"user2": 5})

	_, err := src.FetchLimit(context.Background(), "user1")
	require.ErrorIs(t, err, core.ErrLimitNotFound)
	require.Equal(t, map[string]int{"user2": 5}, src.Limits())
}

func TestWithPrefixNormalizes(t *testing.T) {
	r := NewRedis(nil, WithPrefix(" custom: "))
	require.Equal(t, "custom:user1", r.key("user1"))

	r = NewRedis(nil, WithPrefix(""))
	require.Equal(t, DefaultRedisPrefix+":user1", r.key("user1"))
}

func TestRedisFetchLimit(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	src := NewRedis(client, WithPrefix(fmt.Sprintf("throttlegate-test:%s", uuid.NewString())))
	identity := "user-" + uuid.NewString()
	t.Cleanup(func() { _ = src.DeleteLimit(context.Background(), identity) })

	_, err := src.FetchLimit(ctx, identity)
	require.ErrorIs(t, err, core.ErrLimitNotFound)

	require.NoError(t, src.SetLimit(ctx, core.Limit{Identity: identity, RPS: 7}))
	limit, err := src.FetchLimit(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, 7, limit.RPS)

	require.ErrorIs(t, src.SetLimit(ctx, core.Limit{Identity: identity, RPS: 0}), core.ErrInvalidLimit)
	require.NoError(t, src.CheckHealth(ctx))
}
