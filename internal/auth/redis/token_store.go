// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package redis

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// deleteTokenLua removes one token hash and every index entry pointing at
// it, returning the hash fields (empty when the token did not exist).
const deleteTokenLua = `
local function delete_token(key)
  local fields = redis.call("HGETALL", key)
  if #fields == 0 then
    return fields
  end
  local t = {}
  for i = 1, #fields, 2 do
    t[fields[i]] = fields[i + 1]
  end
  redis.call("DEL", key)
  redis.call("DEL", ARGV[1] .. t["token_hash"])
  redis.call("ZREM", ARGV[2] .. t["user_id"], t["member"])
  redis.call("ZREM", ARGV[3], t["user_id"] .. ":" .. t["id"])
  return fields
end
`

var deleteTokenScript = goredis.NewScript(deleteTokenLua + `
return delete_token(KEYS[1])
`)

// Members left behind by a missing hash are dropped so the loop always
// returns the oldest token that still exists.
var deleteOldestScript = goredis.NewScript(deleteTokenLua + `
while true do
  local m = redis.call("ZRANGE", KEYS[1], 0, 0)
  if #m == 0 then
    return {}
  end
  local fields = delete_token(ARGV[4] .. string.match(m[1], ":(.+)$"))
  if #fields > 0 then
    return fields
  end
  redis.call("ZREM", KEYS[1], m[1])
end
`)

var scriptArgs = []any{tokenHashKeyPrefix, userTokensPrefix, expiryKey, tokenKeyPrefix}

// expiryPageSize bounds one ZRANGEBYSCORE page in UsersWithExpired.
const expiryPageSize = 256

// TokenStore implements auth.TokenRepository on a standalone Redis server.
// Its scripts and MULTI blocks touch keys in different hash slots, so it
// does not run against Redis Cluster.
type TokenStore struct {
	client *goredis.Client
}

// NewTokenStore creates a TokenStore using client.
func NewTokenStore(client *goredis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// ListLive returns the user's unexpired tokens, oldest first.
func (s *TokenStore) ListLive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.SessionToken, error) {
	tokens, err := s.userTokens(ctx, userID)
	if err != nil {
		return nil, oops.Code("TOKEN_LIST_FAILED").With("operation", "list live tokens").Wrap(err)
	}
	live := tokens[:0]
	for _, t := range tokens {
		if !t.IsExpiredAt(now) {
			live = append(live, t)
		}
	}
	return live, nil
}

// DeleteExpired removes the user's tokens that expired before now.
func (s *TokenStore) DeleteExpired(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	tokens, err := s.userTokens(ctx, userID)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").With("operation", "load user tokens").Wrap(err)
	}

	var expired []*auth.SessionToken
	for _, t := range tokens {
		if t.IsExpiredAt(now) {
			expired = append(expired, t)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	cmds := make([]*goredis.Cmd, len(expired))
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, t := range expired {
			cmds[i] = deleteTokenScript.Eval(ctx, pipe, []string{tokenKey(t.ID)}, scriptArgs...)
		}
		return nil
	})
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}

	var n int64
	for _, cmd := range cmds {
		fields, err := cmd.StringSlice()
		if err != nil {
			return n, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").With("operation", "read delete result").Wrap(err)
		}
		if len(fields) > 0 {
			n++
		}
	}
	return n, nil
}

// FindByFingerprint returns the user's token for the device and IP pair.
func (s *TokenStore) FindByFingerprint(ctx context.Context, userID ulid.ULID, deviceInfo, ipAddress string) (*auth.SessionToken, error) {
	tokens, err := s.userTokens(ctx, userID)
	if err != nil {
		return nil, oops.Code("TOKEN_FIND_FAILED").With("operation", "find token by fingerprint").Wrap(err)
	}
	for _, t := range tokens {
		if t.MatchesFingerprint(deviceInfo, ipAddress) {
			return t, nil
		}
	}
	return nil, oops.Code("TOKEN_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
}

// DeleteOldest removes and returns the user's oldest token.
func (s *TokenStore) DeleteOldest(ctx context.Context, userID ulid.ULID) (*auth.SessionToken, error) {
	fields, err := deleteOldestScript.Run(ctx, s.client, []string{userTokensKey(userID)}, scriptArgs...).StringSlice()
	if err != nil {
		return nil, oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete oldest token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("TOKEN_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return parseToken(pairs(fields))
}

// Insert stores a new token and all of its index entries in one MULTI/EXEC.
func (s *TokenStore) Insert(ctx context.Context, token *auth.SessionToken) error {
	n, err := s.client.Exists(ctx, tokenKey(token.ID), tokenHashKey(token.TokenHash)).Result()
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").With("operation", "check existing token").Wrap(err)
	}
	if n > 0 {
		return oops.Code("TOKEN_DUPLICATE").With("token_id", token.ID.String()).Errorf("token already exists")
	}

	member := orderMember(token.IssuedAt, token.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey(token.ID), tokenFields(token, member))
		pipe.Set(ctx, tokenHashKey(token.TokenHash), token.ID.String(), 0)
		pipe.ZAdd(ctx, userTokensKey(token.UserID), goredis.Z{Score: orderScore(token.IssuedAt), Member: member})
		pipe.ZAdd(ctx, expiryKey, goredis.Z{
			Score:  float64(token.ExpiresAt.UnixMicro()),
			Member: expiryMember(token.UserID, token.ID),
		})
		return nil
	})
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
func (s *TokenStore) Delete(ctx context.Context, id ulid.ULID) (bool, error) {
	fields, err := deleteTokenScript.Run(ctx, s.client, []string{tokenKey(id)}, scriptArgs...).StringSlice()
	if err != nil {
		return false, oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete session_token").
			With("token_id", id.String()).
			Wrap(err)
	}
	return len(fields) > 0, nil
}

// GetByTokenHash retrieves a token by the hash of its secret.
func (s *TokenStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.SessionToken, error) {
	id, err := s.client.Get(ctx, tokenHashKey(tokenHash)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").With("operation", "get token by hash").Wrap(err)
	}

	fields, err := s.client.HGetAll(ctx, tokenKeyPrefix+id).Result()
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").With("operation", "get token").With("token_id", id).Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("TOKEN_NOT_FOUND").With("token_id", id).Wrap(auth.ErrNotFound)
	}
	return parseToken(fields)
}

// UsersWithExpired lists up to limit users owning an expired token,
// ordered by user ID. A non-positive limit returns every such user.
func (s *TokenStore) UsersWithExpired(ctx context.Context, now time.Time, limit int) ([]ulid.ULID, error) {
	// Exclusive bound: a token expiring within now's microsecond waits
	// for the next sweep.
	maxScore := "(" + strconv.FormatInt(now.UnixMicro(), 10)

	seen := make(map[ulid.ULID]struct{})
	var users []ulid.ULID
	for offset := int64(0); ; offset += expiryPageSize {
		members, err := s.client.ZRangeByScore(ctx, expiryKey, &goredis.ZRangeBy{
			Min:    "-inf",
			Max:    maxScore,
			Offset: offset,
			Count:  expiryPageSize,
		}).Result()
		if err != nil {
			return nil, oops.Code("TOKEN_LIST_EXPIRED_USERS_FAILED").
				With("operation", "list users with expired tokens").
				Wrap(err)
		}

		for _, m := range members {
			userID, err := userFromExpiryMember(m)
			if err != nil {
				return nil, oops.Code("TOKEN_INVALID_USER_ID").With("member", m).Wrap(err)
			}
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			users = append(users, userID)
			if limit > 0 && len(users) == limit {
				return sortUsers(users), nil
			}
		}
		if len(members) < expiryPageSize {
			return sortUsers(users), nil
		}
	}
}

// userTokens loads every stored token of the user, oldest first. Index
// entries whose hash is gone are skipped.
func (s *TokenStore) userTokens(ctx context.Context, userID ulid.ULID) ([]*auth.SessionToken, error) {
	members, err := s.client.ZRange(ctx, userTokensKey(userID), 0, -1).Result()
	if err != nil {
		return nil, oops.With("user_id", userID.String()).Wrap(err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, m := range members {
			_, id, _ := strings.Cut(m, ":")
			cmds[i] = pipe.HGetAll(ctx, tokenKeyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, oops.With("user_id", userID.String()).Wrap(err)
	}

	tokens := make([]*auth.SessionToken, 0, len(cmds))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		t, err := parseToken(fields)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func tokenFields(t *auth.SessionToken, member string) map[string]any {
	return map[string]any{
		"id":          t.ID.String(),
		"user_id":     t.UserID.String(),
		"name":        t.Name,
		"token_hash":  t.TokenHash,
		"device_info": t.DeviceInfo,
		"ip_address":  t.IPAddress,
		"issued_at":   strconv.FormatInt(t.IssuedAt.UnixNano(), 10),
		"expires_at":  strconv.FormatInt(t.ExpiresAt.UnixNano(), 10),
		"member":      member,
	}
}

func parseToken(fields map[string]string) (*auth.SessionToken, error) {
	id, err := ulid.Parse(fields["id"])
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", fields["id"]).Wrap(err)
	}
	userID, err := ulid.Parse(fields["user_id"])
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", fields["user_id"]).Wrap(err)
	}
	issuedAt, err := parseNanos(fields["issued_at"])
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_TIME").With("field", "issued_at").With("token_id", id.String()).Wrap(err)
	}
	expiresAt, err := parseNanos(fields["expires_at"])
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_TIME").With("field", "expires_at").With("token_id", id.String()).Wrap(err)
	}

	return &auth.SessionToken{
		ID:         id,
		UserID:     userID,
		Name:       fields["name"],
		TokenHash:  fields["token_hash"],
		DeviceInfo: fields["device_info"],
		IPAddress:  fields["ip_address"],
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

func parseNanos(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err //nolint:wrapcheck // callers wrap
	}
	return time.Unix(0, n).UTC(), nil
}

// pairs turns a flat HGETALL reply into a map.
func pairs(flat []string) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		m[flat[i]] = flat[i+1]
	}
	return m
}

func sortUsers(users []ulid.ULID) []ulid.ULID {
	slices.SortFunc(users, func(a, b ulid.ULID) int { return a.Compare(b) })
	return users
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenStore)(nil)
