// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// UserStore is an in-memory auth.UserRepository keyed by normalized email.
type UserStore struct {
	mu      sync.RWMutex
	byEmail map[string]*auth.User
	byID    map[ulid.ULID]*auth.User
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byEmail: make(map[string]*auth.User),
		byID:    make(map[ulid.ULID]*auth.User),
	}
}

// Create stores a new user.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := auth.NormalizeEmail(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
	}
	u := *user
	u.Email = email
	s.byEmail[email] = &u
	s.byID[u.ID] = &u
	return nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	c := *u
	return &c, nil
}

// UpdatePassword replaces a user's password hash.
func (s *UserStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserStore)(nil)
