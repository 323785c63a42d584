// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package sweep periodically deletes expired session tokens.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Config defines how often and how widely the sweeper runs.
type Config struct {
	Interval  time.Duration // How often to run a sweep cycle
	BatchSize int           // Users fetched per batch
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{Interval: time.Hour, BatchSize: 500}
}

// ExpiredUserLister finds users owning expired tokens.
type ExpiredUserLister interface {
	UsersWithExpired(ctx context.Context, now time.Time, limit int) ([]ulid.ULID, error)
}

// UserSweeper deletes one user's expired tokens under that user's lock.
type UserSweeper interface {
	SweepExpired(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error)
}

// Observer records sweep cycle results.
type Observer interface {
	ObserveSweep(deleted int64, err error)
}

// Worker runs periodic expired-token sweeps.
type Worker struct {
	cfg      Config
	lister   ExpiredUserLister
	sweeper  UserSweeper
	observer Observer
	logger   *slog.Logger
	clock    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(w *Worker) { w.observer = o }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) { w.clock = clock }
}

// NewWorker creates a sweep worker.
func NewWorker(cfg Config, lister ExpiredUserLister, sweeper UserSweeper, opts ...Option) (*Worker, error) {
	if cfg.Interval <= 0 {
		return nil, oops.Code("SWEEP_INVALID_CONFIG").With("interval", cfg.Interval.String()).Errorf("sweep interval must be positive")
	}
	if cfg.BatchSize <= 0 {
		return nil, oops.Code("SWEEP_INVALID_CONFIG").With("batch_size", cfg.BatchSize).Errorf("sweep batch size must be positive")
	}
	if lister == nil || sweeper == nil {
		return nil, oops.Code("SWEEP_INVALID_CONFIG").Errorf("lister and sweeper are required")
	}
	w := &Worker{
		cfg:     cfg,
		lister:  lister,
		sweeper: sweeper,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// RunOnce sweeps every user that had an expired token at the start of the
// cycle. A failing user is logged and skipped; errors are combined.
//
// Batches repeat until one comes back short or deletes nothing, so users
// whose sweep keeps failing cannot spin the loop.
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	start := w.clock()
	now := start
	var (
		total int64
		users int
		errs  []error
	)

	for {
		batch, err := w.lister.UsersWithExpired(ctx, now, w.cfg.BatchSize)
		if err != nil {
			errs = append(errs, oops.Code("SWEEP_LIST_FAILED").Wrap(err))
			break
		}

		var deleted int64
		for _, userID := range batch {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			n, err := w.sweeper.SweepExpired(ctx, userID, now)
			if err != nil {
				w.logger.ErrorContext(ctx, "sweep user failed", "user_id", userID.String(), "error", err)
				errs = append(errs, err)
				continue
			}
			deleted += n
		}
		total += deleted
		users += len(batch)

		if ctx.Err() != nil || len(batch) < w.cfg.BatchSize || deleted == 0 {
			break
		}
	}

	err := errors.Join(errs...)
	if w.observer != nil {
		w.observer.ObserveSweep(total, err)
	}
	if total > 0 || err != nil {
		w.logger.InfoContext(ctx, "expired token sweep finished",
			"deleted", total,
			"users", users,
			"duration_ms", w.clock().Sub(start).Milliseconds(),
			"failed", len(errs),
		)
	}
	return total, err
}

// Start begins periodic sweeping. The first cycle runs immediately.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker and waits for the current cycle to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
	}
}
