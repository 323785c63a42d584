// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/memory"
	"github.com/keygate/keygate/internal/auth/postgres"
	authredis "github.com/keygate/keygate/internal/auth/redis"
	"github.com/keygate/keygate/internal/config"
)

// backends holds the repositories for the configured store.
type backends struct {
	users  auth.UserRepository
	tokens auth.TokenRepository
	locker auth.UserLocker

	checks  []func(ctx context.Context) error
	closers []func()
}

// ready pings every external store.
func (b *backends) ready(ctx context.Context) error {
	for _, check := range b.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// close releases connections in reverse order of opening.
func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the stores selected by cfg.Store.Backend. Users
// live in PostgreSQL for every backend except memory.
func openBackends(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Store.Backend == config.BackendMemory {
		logger.Warn("using in-memory stores; all data is lost on exit")
		b.users = memory.NewUserStore()
		b.tokens = memory.NewTokenStore()
		b.locker = auth.NewKeyedMutex()
		return b, nil
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	b.closers = append(b.closers, pool.Close)
	b.checks = append(b.checks, pool.Ping)
	b.users = postgres.NewUserRepository(pool)
	logger.Info("connected to database")

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		b.tokens = postgres.NewTokenRepository(pool)
		b.locker = postgres.NewUserLocker(pool)
	case config.BackendRedis:
		client, err := deps.RedisFactory(ctx, cfg.Redis.URL)
		if err != nil {
			b.close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.checks = append(b.checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		b.tokens = authredis.NewTokenStore(client)
		b.locker = authredis.NewUserLocker(client, authredis.DefaultLockOptions(), logger)
		logger.Info("connected to redis")
	default:
		b.close()
		return nil, oops.Code("CONFIG_INVALID").With("key", "store.backend").Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return b, nil
}
