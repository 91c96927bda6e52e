package cache

import (
	"context"
	"fmt"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreOptions controls how OpenIdempotencyStore picks a backend
type StoreOptions struct {
	Logger *zap.Logger
	// RequireRedis turns a configured but unreachable Redis into an error
	// instead of an in-memory fallback. With several API replicas a local
	// store lets a webhook be applied once per replica.
	RequireRedis bool
}

// OpenIdempotencyStore returns a Redis store when cfg names a host, and an
// in-memory store when it does not.
func OpenIdempotencyStore(ctx context.Context, cfg config.RedisConfig, opts StoreOptions) (shared.IdempotencyStore, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.Host == "" {
		log.Info("Idempotency keys kept in memory, redis not configured")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := DialRedisIdempotencyStore(ctx, cfg)
	switch {
	case err == nil:
		log.Info("Idempotency keys kept in redis", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
		return store, nil
	case opts.RequireRedis:
		return nil, fmt.Errorf("idempotency store: %w", err)
	}

	log.Warn("Redis unreachable, idempotency keys kept in memory and not shared between replicas",
		zap.String("addr", cfg.Addr()), zap.Error(err))
	return NewInMemoryIdempotencyStore(), nil
}
