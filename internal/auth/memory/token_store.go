// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package memory provides map-backed auth repositories for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// TokenStore is an in-memory auth.TokenRepository.
type TokenStore struct {
	mu     sync.RWMutex
	byID   map[ulid.ULID]*auth.SessionToken
	byHash map[string]ulid.ULID
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byID:   make(map[ulid.ULID]*auth.SessionToken),
		byHash: make(map[string]ulid.ULID),
	}
}

func clone(t *auth.SessionToken) *auth.SessionToken {
	c := *t
	return &c
}

// userTokensLocked returns the user's tokens, oldest first. Caller holds mu.
func (s *TokenStore) userTokensLocked(userID ulid.ULID) []*auth.SessionToken {
	var out []*auth.SessionToken
	for _, t := range s.byID {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedBefore(out[j]) })
	return out
}

func (s *TokenStore) deleteLocked(t *auth.SessionToken) {
	delete(s.byID, t.ID)
	delete(s.byHash, t.TokenHash)
}

// ListLive returns the user's unexpired tokens, oldest first.
func (s *TokenStore) ListLive(_ context.Context, userID ulid.ULID, now time.Time) ([]*auth.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*auth.SessionToken
	for _, t := range s.userTokensLocked(userID) {
		if !t.IsExpiredAt(now) {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

// DeleteExpired removes the user's tokens that expired before now.
func (s *TokenStore) DeleteExpired(_ context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.userTokensLocked(userID) {
		if t.IsExpiredAt(now) {
			s.deleteLocked(t)
			n++
		}
	}
	return n, nil
}

// FindByFingerprint returns the user's token for the device and IP pair.
func (s *TokenStore) FindByFingerprint(_ context.Context, userID ulid.ULID, deviceInfo, ipAddress string) (*auth.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.userTokensLocked(userID) {
		if t.MatchesFingerprint(deviceInfo, ipAddress) {
			return clone(t), nil
		}
	}
	return nil, oops.Code("TOKEN_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
}

// DeleteOldest removes and returns the user's oldest token.
func (s *TokenStore) DeleteOldest(_ context.Context, userID ulid.ULID) (*auth.SessionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.userTokensLocked(userID)
	if len(tokens) == 0 {
		return nil, oops.Code("TOKEN_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	oldest := tokens[0]
	s.deleteLocked(oldest)
	return clone(oldest), nil
}

// Insert stores a new token.
func (s *TokenStore) Insert(_ context.Context, token *auth.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[token.ID]; ok {
		return oops.Code("TOKEN_DUPLICATE").With("token_id", token.ID.String()).Errorf("token already exists")
	}
	if _, ok := s.byHash[token.TokenHash]; ok {
		return oops.Code("TOKEN_DUPLICATE").Errorf("token hash already exists")
	}
	s.byID[token.ID] = clone(token)
	s.byHash[token.TokenHash] = token.ID
	return nil
}

// Delete removes a token by ID.
func (s *TokenStore) Delete(_ context.Context, id ulid.ULID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	s.deleteLocked(t)
	return true, nil
}

// GetByTokenHash retrieves a token by the hash of its secret.
func (s *TokenStore) GetByTokenHash(_ context.Context, tokenHash string) (*auth.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return clone(s.byID[id]), nil
}

// UsersWithExpired lists up to limit users owning an expired token,
// ordered by user ID.
func (s *TokenStore) UsersWithExpired(_ context.Context, now time.Time, limit int) ([]ulid.ULID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[ulid.ULID]struct{})
	var users []ulid.ULID
	for _, t := range s.byID {
		if !t.IsExpiredAt(now) {
			continue
		}
		if _, ok := seen[t.UserID]; ok {
			continue
		}
		seen[t.UserID] = struct{}{}
		users = append(users, t.UserID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Compare(users[j]) < 0 })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// Len returns the total number of stored tokens.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenStore)(nil)
