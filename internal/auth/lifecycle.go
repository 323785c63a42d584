// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenPolicy bounds token lifetime and per-user token count.
type TokenPolicy struct {
	TTL       time.Duration
	MaxTokens int
}

// DefaultTokenPolicy returns the policy used when nothing is configured.
func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{TTL: DefaultTokenTTL, MaxTokens: DefaultMaxTokens}
}

// Validate checks that the policy can be enforced.
func (p TokenPolicy) Validate() error {
	if p.TTL <= 0 {
		return oops.Code("TOKEN_POLICY_INVALID").With("ttl", p.TTL.String()).Errorf("token ttl must be positive")
	}
	if p.MaxTokens < 1 {
		return oops.Code("TOKEN_POLICY_INVALID").With("max_tokens", p.MaxTokens).Errorf("max tokens must be at least 1")
	}
	return nil
}

// TokenManager owns the session token lifecycle: issuance with fingerprint
// dedupe and capacity eviction, expiry sweeps, revocation and bearer lookup.
type TokenManager struct {
	tokens   TokenRepository
	locker   UserLocker
	policy   TokenPolicy
	logger   *slog.Logger
	recorder Recorder
}

// NewTokenManager creates a TokenManager. A nil logger falls back to
// slog.Default and a nil recorder to NopRecorder.
func NewTokenManager(tokens TokenRepository, locker UserLocker, policy TokenPolicy, logger *slog.Logger, recorder Recorder) (*TokenManager, error) {
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if locker == nil {
		return nil, oops.Errorf("user locker is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = NopRecorder
	}
	return &TokenManager{
		tokens:   tokens,
		locker:   locker,
		policy:   policy,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Policy returns the policy the manager enforces.
func (m *TokenManager) Policy() TokenPolicy {
	return m.policy
}

type issueStats struct {
	expired    int64
	superseded int64
	evicted    int64
}

// Issue creates a new session token for userID on the given device and IP.
//
// Under the user's lock it drops expired tokens, replaces any token with the
// same fingerprint, evicts the oldest tokens until there is room, and inserts
// the new one. The plaintext secret is only available in the result.
func (m *TokenManager) Issue(ctx context.Context, userID ulid.ULID, deviceInfo, ipAddress string, now time.Time) (*IssuedToken, error) {
	secret, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "generate secret").Wrap(err)
	}

	device := ClassifyDevice(deviceInfo)
	token, err := NewSessionToken(userID, device.TokenName(), tokenHash, deviceInfo, ipAddress, now, m.policy.TTL)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "build token").Wrap(err)
	}

	var stats issueStats
	err = m.locker.WithUserLock(ctx, userID, func(ctx context.Context) error {
		stats = issueStats{}

		expired, err := m.tokens.DeleteExpired(ctx, userID, now)
		if err != nil {
			return oops.With("operation", "delete expired").Wrap(err)
		}
		stats.expired = expired

		existing, err := m.tokens.FindByFingerprint(ctx, userID, deviceInfo, ipAddress)
		switch {
		case err == nil:
			if _, err := m.tokens.Delete(ctx, existing.ID); err != nil {
				return oops.With("operation", "delete superseded").With("token_id", existing.ID.String()).Wrap(err)
			}
			stats.superseded++
		case !errors.Is(err, ErrNotFound):
			return oops.With("operation", "find by fingerprint").Wrap(err)
		}

		live, err := m.tokens.ListLive(ctx, userID, now)
		if err != nil {
			return oops.With("operation", "list live").Wrap(err)
		}
		for count := len(live); count >= m.policy.MaxTokens; count-- {
			evicted, err := m.tokens.DeleteOldest(ctx, userID)
			if errors.Is(err, ErrNotFound) {
				break
			}
			if err != nil {
				return oops.With("operation", "delete oldest").Wrap(err)
			}
			stats.evicted++
			m.logger.DebugContext(ctx, "evicted session token at capacity",
				"user_id", userID.String(),
				"token_id", evicted.ID.String(),
				"issued_at", evicted.IssuedAt,
				"max_tokens", m.policy.MaxTokens)
		}

		if err := m.tokens.Insert(ctx, token); err != nil {
			return oops.With("operation", "insert token").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("user_id", userID.String()).Wrap(err)
	}

	m.recorder.TokensDeleted(DeleteExpired, stats.expired)
	m.recorder.TokensDeleted(DeleteSuperseded, stats.superseded)
	m.recorder.TokensDeleted(DeleteEvicted, stats.evicted)
	m.recorder.TokenIssued(device)

	return &IssuedToken{Secret: secret, Token: token}, nil
}

// Revoke deletes the token identified by secret if it belongs to userID.
// It reports false, without error, when there was nothing to delete.
func (m *TokenManager) Revoke(ctx context.Context, userID ulid.ULID, secret string) (bool, error) {
	if !wellFormedSecret(secret) {
		return false, nil
	}
	tokenHash := HashSessionToken(secret)

	var revoked bool
	err := m.locker.WithUserLock(ctx, userID, func(ctx context.Context) error {
		revoked = false
		token, err := m.tokens.GetByTokenHash(ctx, tokenHash)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return oops.With("operation", "get by token hash").Wrap(err)
		}
		if token.UserID != userID {
			return nil
		}
		revoked, err = m.tokens.Delete(ctx, token.ID)
		if err != nil {
			return oops.With("operation", "delete token").With("token_id", token.ID.String()).Wrap(err)
		}
		return nil
	})
	if err != nil {
		return false, oops.Code("TOKEN_REVOKE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	if revoked {
		m.recorder.TokensDeleted(DeleteRevoked, 1)
	}
	return revoked, nil
}

// SweepExpired removes every token of userID that expired before now.
// Running it twice with the same now deletes nothing the second time.
func (m *TokenManager) SweepExpired(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	var deleted int64
	err := m.locker.WithUserLock(ctx, userID, func(ctx context.Context) error {
		n, err := m.tokens.DeleteExpired(ctx, userID, now)
		deleted = n
		return err
	})
	if err != nil {
		return 0, oops.Code("TOKEN_SWEEP_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	m.recorder.TokensDeleted(DeleteExpired, deleted)
	return deleted, nil
}

// Authenticate resolves a presented bearer secret to its live token.
// Unknown, malformed and expired secrets all yield ErrInvalidToken.
func (m *TokenManager) Authenticate(ctx context.Context, secret string, now time.Time) (*SessionToken, error) {
	if !wellFormedSecret(secret) {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	token, err := m.tokens.GetByTokenHash(ctx, HashSessionToken(secret))
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_AUTHENTICATE_FAILED").With("operation", "get by token hash").Wrap(err)
	}
	if token.IsExpiredAt(now) {
		return nil, oops.Code("TOKEN_EXPIRED").With("token_id", token.ID.String()).Wrap(ErrInvalidToken)
	}
	return token, nil
}
