package sla

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/throttlegate/throttlegate/internal/core"
)

// DefaultRedisPrefix namespaces SLA hashes.
const DefaultRedisPrefix = "throttlegate:sla"

const rpsField = "rps"

// Redis reads limits from hashes keyed "<prefix>:<identity>" with an "rps"
// field.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a Redis source.
type RedisOption func(*Redis)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(identity string) string {
	return r.prefix + ":" + identity
}

// FetchLimit reads the identity's hash.
func (r *Redis) FetchLimit(ctx context.Context, identity string) (core.Limit, error) {
	rps, err := r.client.HGet(ctx, r.key(identity), rpsField).Int()
	if errors.Is(err, redis.Nil) {
		return core.Limit{}, fmt.Errorf("%w: %s", core.ErrLimitNotFound, identity)
	}
	if err != nil {
		return core.Limit{}, fmt.Errorf("redis sla lookup: %w", err)
	}
	return core.Limit{Identity: identity, RPS: rps}, nil
}

// SetLimit writes (or overwrites) an identity's limit.
func (r *Redis) SetLimit(ctx context.Context, limit core.Limit) error {
	if err := limit.Validate(); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key(limit.Identity), rpsField, limit.RPS).Err(); err != nil {
		return fmt.Errorf("redis sla write: %w", err)
	}
	return nil
}

// DeleteLimit removes an identity's limit.
func (r *Redis) DeleteLimit(ctx context.Context, identity string) error {
	if err := r.client.Del(ctx, r.key(identity)).Err(); err != nil {
		return fmt.Errorf("redis sla delete: %w", err)
	}
	return nil
}

// CheckHealth pings the server.
func (r *Redis) CheckHealth(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
