// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

const tokenColumns = `id, user_id, name, token_hash, device_info, ip_address, issued_at, expires_at`

// oldestFirst orders a user's tokens for eviction. ULIDs compare bytewise.
const oldestFirst = `ORDER BY issued_at, id COLLATE "C"`

// TokenRepository implements auth.TokenRepository using PostgreSQL.
// Calls made with a context from UserLocker join its transaction.
type TokenRepository struct {
	pool Pool
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// ListLive returns the user's unexpired tokens, oldest first.
func (r *TokenRepository) ListLive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.SessionToken, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT `+tokenColumns+`
		FROM session_tokens
		WHERE user_id = $1 AND expires_at >= $2
		`+oldestFirst, userID.String(), now)
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").
			With("operation", "list live tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.SessionToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_ROWS_ERROR").With("operation", "iterate token rows").Wrap(err)
	}
	return tokens, nil
}

// DeleteExpired removes the user's tokens that expired before now.
func (r *TokenRepository) DeleteExpired(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	result, err := querier(ctx, r.pool).Exec(ctx, `
		DELETE FROM session_tokens WHERE user_id = $1 AND expires_at < $2
	`, userID.String(), now)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// FindByFingerprint returns the user's token for the device and IP pair.
func (r *TokenRepository) FindByFingerprint(ctx context.Context, userID ulid.ULID, deviceInfo, ipAddress string) (*auth.SessionToken, error) {
	row := querier(ctx, r.pool).QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM session_tokens
		WHERE user_id = $1 AND device_info = $2 AND ip_address = $3
		`+oldestFirst+`
		LIMIT 1
	`, userID.String(), deviceInfo, ipAddress)
	return r.one(row, "find token by fingerprint", userID)
}

// DeleteOldest removes and returns the user's oldest token.
func (r *TokenRepository) DeleteOldest(ctx context.Context, userID ulid.ULID) (*auth.SessionToken, error) {
	row := querier(ctx, r.pool).QueryRow(ctx, `
		DELETE FROM session_tokens
		WHERE id = (
			SELECT id FROM session_tokens
			WHERE user_id = $1
			`+oldestFirst+`
			LIMIT 1
		)
		RETURNING `+tokenColumns, userID.String())
	return r.one(row, "delete oldest token", userID)
}

// Insert stores a new token.
func (r *TokenRepository) Insert(ctx context.Context, token *auth.SessionToken) error {
	_, err := querier(ctx, r.pool).Exec(ctx, `
		INSERT INTO session_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.Name,
		token.TokenHash,
		token.DeviceInfo,
		token.IPAddress,
		token.IssuedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").
			With("operation", "insert session_token").
			With("user_id", token.UserID.String()).
			With("token_id", token.ID.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a token by ID.
func (r *TokenRepository) Delete(ctx context.Context, id ulid.ULID) (bool, error) {
	result, err := querier(ctx, r.pool).Exec(ctx, `
		DELETE FROM session_tokens WHERE id = $1
	`, id.String())
	if err != nil {
		return false, oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete session_token").
			With("token_id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// GetByTokenHash retrieves a token by the hash of its secret.
func (r *TokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.SessionToken, error) {
	row := querier(ctx, r.pool).QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM session_tokens
		WHERE token_hash = $1
	`, tokenHash)
	return r.one(row, "get token by hash", ulid.ULID{})
}

// UsersWithExpired lists up to limit users owning an expired token.
func (r *TokenRepository) UsersWithExpired(ctx context.Context, now time.Time, limit int) ([]ulid.ULID, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT user_id
		FROM session_tokens
		WHERE expires_at < $1
		ORDER BY user_id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_EXPIRED_USERS_FAILED").With("operation", "list users with expired tokens").Wrap(err)
	}
	defer rows.Close()

	var users []ulid.ULID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, oops.Code("TOKEN_SCAN_FAILED").With("operation", "scan user id").Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", idStr).Wrap(err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_ROWS_ERROR").With("operation", "iterate user rows").Wrap(err)
	}
	return users, nil
}

// one scans a single-row result, mapping no rows to auth.ErrNotFound.
func (r *TokenRepository) one(row pgx.Row, operation string, userID ulid.ULID) (*auth.SessionToken, error) {
	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		e := oops.Code("TOKEN_NOT_FOUND").With("operation", operation)
		if userID != (ulid.ULID{}) {
			e = e.With("user_id", userID.String())
		}
		return nil, e.Wrap(auth.ErrNotFound)
	}
	return token, err
}

// scanToken scans one session_tokens row. pgx.ErrNoRows passes through
// unwrapped so callers can map it.
func scanToken(row pgx.Row) (*auth.SessionToken, error) {
	var (
		idStr, userIDStr string
		token            auth.SessionToken
	)
	err := row.Scan(&idStr, &userIDStr, &token.Name, &token.TokenHash, &token.DeviceInfo, &token.IPAddress, &token.IssuedAt, &token.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}
	if err != nil {
		return nil, oops.Code("TOKEN_SCAN_FAILED").With("operation", "scan session_token").Wrap(err)
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if token.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	return &token, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
