// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package redis

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/keygate/keygate/internal/auth"
)

// releaseLockScript deletes the lock only if this owner still holds it.
var releaseLockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockHeld = errors.New("user lock held by another owner")

// LockOptions tunes UserLocker.
type LockOptions struct {
	// TTL bounds how long a crashed holder blocks the user.
	TTL time.Duration
	// Wait bounds how long WithUserLock waits to acquire.
	Wait time.Duration
	// BaseDelay is the first retry interval; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single retry interval.
	MaxDelay time.Duration
}

// DefaultLockOptions returns options suited to login-sized critical sections.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		TTL:       10 * time.Second,
		Wait:      5 * time.Second,
		BaseDelay: 5 * time.Millisecond,
		MaxDelay:  100 * time.Millisecond,
	}
}

type heldLocksKey struct{}

// UserLocker implements auth.UserLocker with a Redis lock key per user.
// Unlike the PostgreSQL locker it has no rollback: work fn completed before
// failing stays visible.
type UserLocker struct {
	client goredis.UniversalClient
	opts   LockOptions
	logger *slog.Logger
}

// NewUserLocker creates a UserLocker. A nil logger uses slog.Default.
func NewUserLocker(client goredis.UniversalClient, opts LockOptions, logger *slog.Logger) *UserLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserLocker{client: client, opts: opts, logger: logger}
}

// WithUserLock acquires the user's lock, runs fn and releases the lock.
// A nested call for a user already locked by ctx runs fn directly.
func (l *UserLocker) WithUserLock(ctx context.Context, userID ulid.ULID, fn func(ctx context.Context) error) error {
	held, _ := ctx.Value(heldLocksKey{}).(map[ulid.ULID]struct{})
	if _, ok := held[userID]; ok {
		return fn(ctx)
	}

	owner := ulid.MustNew(ulid.Now(), rand.Reader).String()
	key := lockKey(userID)
	if err := l.acquire(ctx, key, owner); err != nil {
		return oops.With("user_id", userID.String()).Wrap(err)
	}
	defer l.release(ctx, key, owner)

	next := make(map[ulid.ULID]struct{}, len(held)+1)
	for id := range held {
		next[id] = struct{}{}
	}
	next[userID] = struct{}{}
	return fn(context.WithValue(ctx, heldLocksKey{}, next))
}

func (l *UserLocker) acquire(ctx context.Context, key, owner string) error {
	backoff := retry.NewExponential(l.opts.BaseDelay)
	backoff = retry.WithCappedDuration(l.opts.MaxDelay, backoff)
	backoff = retry.WithMaxDuration(l.opts.Wait, backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		ok, err := l.client.SetNX(ctx, key, owner, l.opts.TTL).Result()
		if err != nil {
			return err //nolint:wrapcheck // wrapped below
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	switch {
	case errors.Is(err, errLockHeld):
		return oops.Code("USER_LOCK_TIMEOUT").With("attempts", attempts).With("wait", l.opts.Wait.String()).Wrap(err)
	case err != nil:
		return oops.Code("USER_LOCK_FAILED").With("attempts", attempts).Wrap(err)
	}
	return nil
}

// release runs even when ctx is cancelled; otherwise the user stays locked
// until the TTL lapses.
func (l *UserLocker) release(ctx context.Context, key, owner string) {
	ctx = context.WithoutCancel(ctx)
	n, err := releaseLockScript.Run(ctx, l.client, []string{key}, owner).Int64()
	if err != nil {
		l.logger.WarnContext(ctx, "failed to release user lock", "key", key, "error", err)
		return
	}
	if n == 0 {
		l.logger.WarnContext(ctx, "user lock expired before release", "key", key, "ttl", l.opts.TTL)
	}
}

// Compile-time interface check.
var _ auth.UserLocker = (*UserLocker)(nil)
