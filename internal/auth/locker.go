// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// UserLocker serializes compound token operations for one user.
//
// fn runs while the lock is held and receives a context that storage
// implementations may use to join the same transaction. If fn returns an
// error, work done through that context must not become visible.
type UserLocker interface {
	WithUserLock(ctx context.Context, userID ulid.ULID, fn func(ctx context.Context) error) error
}

// KeyedMutex is an in-process UserLocker. It is correct only when a single
// process owns the token store (memory backend, tests).
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[ulid.ULID]*keyedLock
}

type keyedLock struct {
	mu      sync.Mutex
	waiters int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[ulid.ULID]*keyedLock)}
}

// WithUserLock runs fn while holding the lock for userID.
// Entries are dropped once nobody holds or waits on them.
func (k *KeyedMutex) WithUserLock(ctx context.Context, userID ulid.ULID, fn func(ctx context.Context) error) error {
	k.mu.Lock()
	l, ok := k.locks[userID]
	if !ok {
		l = &keyedLock{}
		k.locks[userID] = l
	}
	l.waiters++
	k.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(k.locks, userID)
		}
		k.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	return fn(ctx)
}

// Compile-time interface check.
var _ UserLocker = (*KeyedMutex)(nil)
