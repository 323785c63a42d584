// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/worker/sweep"
)

// newSweepCmd creates the one-shot sweep subcommand.
func newSweepCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired session tokens once and exit",
		Long: `Run a single expired token sweep against the configured store.
serve runs the same sweep periodically; this is for cron-style deployments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, deps.withDefaults())
		},
	}
}

func runSweep(cmd *cobra.Command, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, deps.LogOutput)
	ctx := cmd.Context()

	stores, err := openBackends(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	tokens, err := auth.NewTokenManager(stores.tokens, stores.locker, cfg.Auth.TokenPolicy(), logger, nil)
	if err != nil {
		return oops.Code("SWEEP_FAILED").With("operation", "create token manager").Wrap(err)
	}
	worker, err := sweep.NewWorker(sweep.Config{Interval: cfg.Sweep.Interval, BatchSize: cfg.Sweep.BatchSize},
		stores.tokens, tokens, sweep.WithLogger(logger))
	if err != nil {
		return oops.Code("SWEEP_FAILED").With("operation", "create sweeper").Wrap(err)
	}

	deleted, err := worker.RunOnce(ctx)
	cmd.Printf("Deleted %d expired token(s)\n", deleted)
	if err != nil {
		return oops.Code("SWEEP_FAILED").Wrap(err)
	}
	return nil
}
