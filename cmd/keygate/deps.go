// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/postgres"
	"github.com/keygate/keygate/internal/captcha"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/store"
)

// DBPool wraps the methods used from *pgxpool.Pool.
type DBPool interface {
	postgres.Pool
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

// Deps contains injectable dependencies shared by the subcommands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens a PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, logger *slog.Logger) (DBPool, error)

	// RedisFactory opens and pings a Redis client.
	// Default: goredis.ParseURL + goredis.NewClient
	RedisFactory func(ctx context.Context, url string) (*goredis.Client, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// CaptchaFactory builds the captcha verifier when captcha is enabled.
	// Default: captcha.New
	CaptchaFactory func(cfg config.CaptchaConfig) (auth.CaptchaVerifier, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// LogOutput receives structured logs.
	// Default: os.Stderr
	LogOutput io.Writer
}

// withDefaults returns a copy of d with every nil factory filled in.
func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, dsn string, logger *slog.Logger) (DBPool, error) {
			pool, err := store.Connect(ctx, dsn, store.DefaultConnectOptions(), logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = connectRedis
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.CaptchaFactory == nil {
		out.CaptchaFactory = func(cfg config.CaptchaConfig) (auth.CaptchaVerifier, error) {
			v, err := captcha.New(cfg.Provider, cfg.Secret, cfg.Timeout)
			if err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	return out
}

func connectRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "parse url").Wrap(err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}
