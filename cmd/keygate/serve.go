// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/httpapi"
	"github.com/keygate/keygate/internal/observability"
	keygatetls "github.com/keygate/keygate/internal/tls"
	"github.com/keygate/keygate/internal/worker/sweep"
)

// newServeCmd creates the serve subcommand.
func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with the expired token sweeper and,
unless metrics.addr is empty, the metrics and health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}
}

// runServeWithDeps runs the service until ctx is cancelled or a server
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	logger := setupLogging(cfg, deps.LogOutput)

	logger.Info("starting keygate",
		"version", version,
		"addr", cfg.Server.Addr,
		"store_backend", cfg.Store.Backend,
		"captcha_enabled", cfg.Captcha.Enabled,
		"tls", cfg.Server.TLSEnabled(),
	)

	stores, err := openBackends(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, stores.ready, logger)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	tokens, err := auth.NewTokenManager(stores.tokens, stores.locker, cfg.Auth.TokenPolicy(), logger, metrics)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "create token manager").Wrap(err)
	}

	var verifier auth.CaptchaVerifier
	if cfg.Captcha.Enabled {
		verifier, err = deps.CaptchaFactory(cfg.Captcha)
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "create captcha verifier").Wrap(err)
		}
	}

	svc, err := auth.NewService(auth.ServiceConfig{CaptchaEnabled: cfg.Captcha.Enabled}, verifier, stores.users, auth.NewArgon2idHasher(), tokens, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "create auth service").Wrap(err)
	}

	sweeper, err := sweep.NewWorker(sweep.Config{Interval: cfg.Sweep.Interval, BatchSize: cfg.Sweep.BatchSize},
		stores.tokens, tokens,
		sweep.WithLogger(logger),
		sweep.WithObserver(metrics),
	)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "create sweeper").Wrap(err)
	}

	var tlsConfig *cryptotls.Config
	if cfg.Server.TLSEnabled() {
		tlsConfig, err = keygatetls.LoadServerTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "load tls").Wrap(err)
		}
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "listen").With("addr", cfg.Server.Addr).Wrap(err)
	}
	if tlsConfig != nil {
		listener = cryptotls.NewListener(listener, tlsConfig)
	}

	httpServer := &http.Server{
		Handler: httpapi.NewRouter(httpapi.RouterDeps{
			Service:       svc,
			Authenticator: tokens,
			Observer:      metrics,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sweeper.Start(ctx)

	cmd.Println("Keygate started")
	logger.Info("keygate ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errChan:
		runErr = oops.Code("SERVE_FAILED").With("operation", "serve http").Wrap(err)
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	cancel()
	sweeper.Stop()

	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string, logger *slog.Logger) {
	select {
	case <-ctx.Done():
	case err, ok := <-errChan:
		if ok && err != nil {
			logger.Error("server failed", "server", name, "error", err)
			cancel()
		}
	}
}
