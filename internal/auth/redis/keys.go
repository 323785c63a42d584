// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package redis provides Redis-backed session token storage and a
// distributed per-user lock. User accounts stay in PostgreSQL.
//
// Only standalone Redis is supported: token scripts derive index key names
// from their arguments and update several keys at once.
//
// Key layout:
//
//	keygate:token:{id}              hash, one per token
//	keygate:token_hash:{sha256}     string, token ID for secret lookup
//	keygate:user_tokens:{userID}    sorted set of the user's tokens, oldest first
//	keygate:token_expiry            sorted set of "{userID}:{tokenID}" by expiry
//	keygate:lock:user:{userID}      lock owner, with a TTL
package redis

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	tokenKeyPrefix     = "keygate:token:"
	tokenHashKeyPrefix = "keygate:token_hash:"
	userTokensPrefix   = "keygate:user_tokens:"
	expiryKey          = "keygate:token_expiry"
	lockKeyPrefix      = "keygate:lock:user:"
)

func tokenKey(id ulid.ULID) string { return tokenKeyPrefix + id.String() }

func tokenHashKey(hash string) string { return tokenHashKeyPrefix + hash }

func userTokensKey(userID ulid.ULID) string { return userTokensPrefix + userID.String() }

func lockKey(userID ulid.ULID) string { return lockKeyPrefix + userID.String() }

// orderMember is the user sorted-set member for a token. Scores carry
// microseconds, which a float64 holds exactly; members sharing a score
// sort bytewise, so the zero-padded nanoseconds and then the ID break ties.
func orderMember(issuedAt time.Time, id ulid.ULID) string {
	return fmt.Sprintf("%020d:%s", issuedAt.UnixNano(), id.String())
}

func orderScore(issuedAt time.Time) float64 {
	return float64(issuedAt.UnixMicro())
}

func expiryMember(userID, id ulid.ULID) string {
	return userID.String() + ":" + id.String()
}

// userFromExpiryMember extracts the user ID from an expiry set member.
func userFromExpiryMember(member string) (ulid.ULID, error) {
	user, _, _ := strings.Cut(member, ":")
	return ulid.Parse(user) //nolint:wrapcheck // callers wrap
}
