// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/postgres"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

type seedUser struct {
	name     string
	email    string
	password string
}

// defaultSeedUsers are development accounts. Never seed a production
// database with them.
var defaultSeedUsers = []seedUser{
	{name: "Admin User", email: "admin@example.com", password: "admin123"},
	{name: "Test User", email: "test@example.com", password: "password123"},
}

// newSeedCmd creates the seed subcommand.
func newSeedCmd(deps *Deps) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the development user accounts",
		Long: `Creates admin@example.com and test@example.com with well-known passwords.
This command is idempotent - existing accounts are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, deps.withDefaults(), timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, deps *Deps, timeout time.Duration) error {
	cfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, deps.LogOutput)

	// cmd.Context() carries SIGINT/SIGTERM cancellation.
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	created, err := seedUsers(ctx, cmd, postgres.NewUserRepository(pool), auth.NewArgon2idHasher(), defaultSeedUsers, time.Now())
	if err != nil {
		return err
	}
	cmd.Printf("Seed complete: %d created, %d already present\n", created, len(defaultSeedUsers)-created)
	return nil
}

// seedUsers creates each account that does not exist yet.
func seedUsers(ctx context.Context, cmd *cobra.Command, users auth.UserRepository, hasher auth.PasswordHasher, accounts []seedUser, now time.Time) (int, error) {
	created := 0
	for _, acct := range accounts {
		hash, err := hasher.Hash(acct.password)
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("email", acct.email).With("operation", "hash password").Wrap(err)
		}
		user, err := auth.NewUser(acct.name, acct.email, hash, now)
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("email", acct.email).With("operation", "build user").Wrap(err)
		}

		err = users.Create(ctx, user)
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			cmd.Printf("  %s exists, skipping\n", acct.email)
		case err != nil:
			return created, oops.Code("SEED_FAILED").With("email", acct.email).With("operation", "create user").Wrap(err)
		default:
			cmd.Printf("  created %s\n", acct.email)
			created++
		}
	}
	return created, nil
}
