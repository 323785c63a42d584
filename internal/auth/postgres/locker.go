// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

const lockUserSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

// UserLocker implements auth.UserLocker with a transaction-scoped advisory
// lock. The transaction travels in the context handed to fn, so repository
// calls made through it commit or roll back together.
type UserLocker struct {
	pool Pool
}

// NewUserLocker creates a UserLocker backed by pool.
func NewUserLocker(pool Pool) *UserLocker {
	return &UserLocker{pool: pool}
}

// WithUserLock begins a transaction, takes the user's advisory lock and
// runs fn. fn returning nil commits; anything else rolls back. The lock is
// released when the transaction ends.
func (l *UserLocker) WithUserLock(ctx context.Context, userID ulid.ULID, fn func(ctx context.Context) error) error {
	// Nested call: lock inside the caller's transaction.
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		return fn(ctx)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := lockUser(ctx, tx, userID); err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}

// lockUser blocks until the transaction holds the user's advisory lock.
// Postgres locks are reentrant within a session, so nesting is safe.
func lockUser(ctx context.Context, tx pgx.Tx, userID ulid.ULID) error {
	if _, err := tx.Exec(ctx, lockUserSQL, userID.String()); err != nil {
		return oops.Code("USER_LOCK_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.UserLocker = (*UserLocker)(nil)
