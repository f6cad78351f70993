// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/constants"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
)

// # Record Layout
//
// auth:refresh:tok:<hash>    HASH  id, user_id, expires_at, revoked, created_at
// auth:refresh:user:<userID> SET   token hashes issued to the user
//
// Timestamps are stored as Unix microseconds. Key lifetimes are relative
// (PEXPIRE), so the server's wall clock never has to agree with the clock that
// stamped the record. A record key lives for the token's TTL plus
// redisExpiryGrace; the user index lives as long as its longest-lived record.
// PurgeExpired removes both earlier.

const (
	fieldID        = "id"
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
	fieldRevoked   = "revoked"
	fieldCreatedAt = "created_at"

	scanBatchSize = 200
)

const (
	writeStatusDuplicate int64 = -1
	writeStatusLost      int64 = 0
	writeStatusDone      int64 = 1
)

const createTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -1
end
local ttl = tonumber(ARGV[6])
redis.call("HSET", KEYS[1], "id", ARGV[1], "user_id", ARGV[2], "expires_at", ARGV[3], "revoked", ARGV[4], "created_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("SADD", KEYS[2], ARGV[7])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var createTokenLua = redis.NewScript(createTokenScript)

const revokeTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "revoked", "1")
end
return 1
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

// The per-user set is walked inside the script so no token issued for the
// user between SMEMBERS and HSET can escape revocation.
const revokeAllTokensScript = `
local count = 0
local hashes = redis.call("SMEMBERS", KEYS[1])
for _, hash in ipairs(hashes) do
  local key = ARGV[1] .. hash
  local revoked = redis.call("HGET", key, "revoked")
  if revoked == "0" then
    redis.call("HSET", key, "revoked", "1")
    count = count + 1
  elseif not revoked then
    redis.call("SREM", KEYS[1], hash)
  end
end
return count
`

var revokeAllTokensLua = redis.NewScript(revokeAllTokensScript)

const rotateTokenScript = `
local revoked = redis.call("HGET", KEYS[1], "revoked")
if revoked ~= "0" then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
local ttl = tonumber(ARGV[5])
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSET", KEYS[2], "id", ARGV[1], "user_id", ARGV[2], "expires_at", ARGV[3], "revoked", "0", "created_at", ARGV[4])
redis.call("PEXPIRE", KEYS[2], ttl)
redis.call("SADD", KEYS[3], ARGV[6])
if redis.call("PTTL", KEYS[3]) < ttl then
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

// Drops index entries whose record key no longer exists, e.g. after Redis
// expired it on its own.
const pruneIndexScript = `
local removed = 0
local hashes = redis.call("SMEMBERS", KEYS[1])
for _, hash in ipairs(hashes) do
  if redis.call("EXISTS", ARGV[1] .. hash) == 0 then
    redis.call("SREM", KEYS[1], hash)
    removed = removed + 1
  end
end
return removed
`

var pruneIndexLua = redis.NewScript(pruneIndexScript)

// RedisRefreshTokenRepository implements [RefreshTokenRepository] on Redis.
//
// Every mutation is a Lua script, so each one is atomic on a single node.
// Scripts touch keys outside KEYS, which rules out Redis Cluster.
type RedisRefreshTokenRepository struct {
	client redis.UniversalClient
}

// NewRedisRefreshTokenRepository creates a repository over client.
func NewRedisRefreshTokenRepository(client redis.UniversalClient) *RedisRefreshTokenRepository {
	return &RedisRefreshTokenRepository{client: client}
}

// Create implements [RefreshTokenRepository].
func (repository *RedisRefreshTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	revoked := "0"
	if token.Revoked {
		revoked = "1"
	}

	status, err := createTokenLua.Run(ctx, repository.client,
		[]string{tokenKey(token.TokenHash), userTokensKey(token.UserID)},
		token.ID,
		token.UserID,
		token.ExpiresAt.UnixMicro(),
		revoked,
		token.CreatedAt.UnixMicro(),
		keyTTL(token),
		token.TokenHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis_refresh_repo_create_failed: %w", err)
	}
	if status == writeStatusDuplicate {
		return apperr.Conflict("Resource already exists")
	}

	return nil
}

// FindByHash implements [RefreshTokenRepository].
func (repository *RedisRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	fields, err := repository.client.HGetAll(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis_refresh_repo_find_failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, dberr.ErrNotFound
	}

	token, err := decodeToken(tokenHash, fields)
	if err != nil {
		return nil, fmt.Errorf("redis_refresh_repo_find_failed: %w", err)
	}

	return token, nil
}

// RevokeByHash implements [RefreshTokenRepository].
func (repository *RedisRefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) error {
	if err := revokeTokenLua.Run(ctx, repository.client, []string{tokenKey(tokenHash)}).Err(); err != nil {
		return fmt.Errorf("redis_refresh_repo_revoke_failed: %w", err)
	}
	return nil
}

// RevokeAllForUser implements [RefreshTokenRepository].
func (repository *RedisRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	count, err := revokeAllTokensLua.Run(ctx, repository.client,
		[]string{userTokensKey(userID)},
		constants.RedisPrefixRefreshToken,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis_refresh_repo_revoke_all_failed: %w", err)
	}
	return count, nil
}

/*
DeleteExpired walks every token record and removes those that expired
before the cutoff, together with their entry in the owner's index. It then
prunes index entries left behind by records Redis already expired itself.

Description: SCAN is incremental, so a long walk never blocks the server.
Records created during the walk may be missed; the next run picks them up.
*/
func (repository *RedisRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var (
		removed int64
		cutoff  = before.UnixMicro()
	)

	err := repository.scan(ctx, constants.RedisPrefixRefreshToken+"*", func(key string) error {
		values, err := repository.client.HMGet(ctx, key, fieldExpiresAt, fieldUserID).Result()
		if err != nil {
			return err
		}

		expiresAt, ok := parseMicros(values[0])
		if !ok || expiresAt >= cutoff {
			return nil
		}

		deleted, err := repository.client.Del(ctx, key).Result()
		if err != nil {
			return err
		}
		removed += deleted

		if userID, ok := values[1].(string); ok {
			hash := strings.TrimPrefix(key, constants.RedisPrefixRefreshToken)
			return repository.client.SRem(ctx, userTokensKey(userID), hash).Err()
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("redis_refresh_repo_delete_expired_failed: %w", err)
	}

	err = repository.scan(ctx, constants.RedisPrefixRefreshUser+"*", func(key string) error {
		return pruneIndexLua.Run(ctx, repository.client, []string{key}, constants.RedisPrefixRefreshToken).Err()
	})
	if err != nil {
		return removed, fmt.Errorf("redis_refresh_repo_prune_index_failed: %w", err)
	}

	return removed, nil
}

// scan calls visit for every key matching pattern.
func (repository *RedisRefreshTokenRepository) scan(ctx context.Context, pattern string, visit func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := repository.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := visit(key); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Rotate implements [RefreshTokenRepository].
func (repository *RedisRefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next *RefreshToken) (bool, error) {
	status, err := rotateTokenLua.Run(ctx, repository.client,
		[]string{tokenKey(oldHash), tokenKey(next.TokenHash), userTokensKey(next.UserID)},
		next.ID,
		next.UserID,
		next.ExpiresAt.UnixMicro(),
		next.CreatedAt.UnixMicro(),
		keyTTL(next),
		next.TokenHash,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis_refresh_repo_rotate_failed: %w", err)
	}

	switch status {
	case writeStatusDone:
		return true, nil
	case writeStatusLost:
		return false, nil
	case writeStatusDuplicate:
		return false, apperr.Conflict("Resource already exists")
	default:
		return false, fmt.Errorf("redis_refresh_repo_rotate_failed: unknown status %d", status)
	}
}

// # Helpers

func tokenKey(tokenHash string) string {
	return constants.RedisPrefixRefreshToken + tokenHash
}

func userTokensKey(userID string) string {
	return constants.RedisPrefixRefreshUser + userID
}

// keyTTL is the relative key lifetime, in milliseconds, for a record. It is
// derived from the record's own timestamps only, never from a wall clock.
func keyTTL(token *RefreshToken) int64 {
	ttl := token.ExpiresAt.Sub(token.CreatedAt) + redisExpiryGrace
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl.Milliseconds()
}

func decodeToken(tokenHash string, fields map[string]string) (*RefreshToken, error) {
	expiresAt, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt %s: %w", fieldExpiresAt, err)
	}
	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt %s: %w", fieldCreatedAt, err)
	}

	return &RefreshToken{
		ID:        fields[fieldID],
		TokenHash: tokenHash,
		UserID:    fields[fieldUserID],
		ExpiresAt: time.UnixMicro(expiresAt).UTC(),
		Revoked:   fields[fieldRevoked] != "0",
		CreatedAt: time.UnixMicro(createdAt).UTC(),
	}, nil
}

func parseMicros(value any) (int64, bool) {
	raw, ok := value.(string)
	if !ok {
		return 0, false
	}
	micros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return micros, true
}
