// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes   = 32 // 32 bytes = 256 bits = 64 hex chars
	DefaultTokenTTL     = 24 * time.Hour
	DefaultMaxTokens    = 5
	sessionTokenHexSize = SessionTokenBytes * 2
)

// SessionToken is one issued bearer credential. Only the hash of the
// secret is stored; the plaintext is handed to the caller once at issuance.
//
// Tokens are immutable. Every state change is a delete.
type SessionToken struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	Name       string
	TokenHash  string
	DeviceInfo string
	IPAddress  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// NewSessionToken creates a validated SessionToken expiring ttl after issuedAt.
// DeviceInfo and IPAddress are optional and may be empty.
func NewSessionToken(userID ulid.ULID, name, tokenHash, deviceInfo, ipAddress string, issuedAt time.Time, ttl time.Duration) (*SessionToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if issuedAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_ISSUED_AT").Errorf("issued-at time cannot be zero")
	}
	if ttl <= 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}

	// Times before 1970 wrap to a huge ULID timestamp and are refused.
	id, err := ulid.New(ulid.Timestamp(issuedAt), rand.Reader)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ISSUED_AT").With("issued_at", issuedAt.UTC().Format(time.RFC3339Nano)).Wrap(err)
	}

	return &SessionToken{
		ID:         id,
		UserID:     userID,
		Name:       name,
		TokenHash:  tokenHash,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(ttl),
	}, nil
}

// IsExpiredAt reports whether the token is expired at t.
// A token whose ExpiresAt equals t is still live.
func (t *SessionToken) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// MatchesFingerprint reports whether the token was issued to the given
// device and IP pair.
func (t *SessionToken) MatchesFingerprint(deviceInfo, ipAddress string) bool {
	return t.DeviceInfo == deviceInfo && t.IPAddress == ipAddress
}

// IssuedBefore orders tokens by issue time, then by ID. Eviction picks the
// smallest token under this order.
func (t *SessionToken) IssuedBefore(other *SessionToken) bool {
	if !t.IssuedAt.Equal(other.IssuedAt) {
		return t.IssuedAt.Before(other.IssuedAt)
	}
	return t.ID.Compare(other.ID) < 0
}

// IssuedToken pairs a freshly persisted token with its plaintext secret.
// The secret is not recoverable afterwards.
type IssuedToken struct {
	Secret string
	Token  *SessionToken
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
// The secret already carries 256 bits of entropy, so a fast hash is enough
// to make the stored value useless to someone reading the table.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// wellFormedSecret reports whether s looks like a secret produced by
// GenerateSessionToken. It saves a store round trip for garbage input.
func wellFormedSecret(s string) bool {
	if len(s) != sessionTokenHexSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// TokenRepository manages session token persistence.
//
// Compound operations are made atomic by the caller through a UserLocker;
// implementations only guarantee that each call is individually atomic.
type TokenRepository interface {
	// ListLive returns the user's tokens with ExpiresAt >= now, oldest first.
	ListLive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*SessionToken, error)

	// DeleteExpired removes the user's tokens with ExpiresAt < now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error)

	// FindByFingerprint returns the user's token issued to exactly this
	// device and IP pair. Returns ErrNotFound if there is none.
	FindByFingerprint(ctx context.Context, userID ulid.ULID, deviceInfo, ipAddress string) (*SessionToken, error)

	// DeleteOldest removes and returns the user's token with the smallest
	// IssuedAt, ties broken by ID. Returns ErrNotFound if the user has none.
	DeleteOldest(ctx context.Context, userID ulid.ULID) (*SessionToken, error)

	// Insert stores a new token.
	Insert(ctx context.Context, token *SessionToken) error

	// Delete removes a token by ID and reports whether it existed.
	Delete(ctx context.Context, id ulid.ULID) (bool, error)

	// GetByTokenHash retrieves a token by the hash of its secret.
	// Returns ErrNotFound if there is none.
	GetByTokenHash(ctx context.Context, tokenHash string) (*SessionToken, error)

	// UsersWithExpired lists up to limit users owning at least one token
	// with ExpiresAt < now.
	UsersWithExpired(ctx context.Context, now time.Time, limit int) ([]ulid.ULID, error)
}
