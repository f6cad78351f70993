// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
	"github.com/taibuivan/authsvc/internal/platform/sec"
	"github.com/taibuivan/authsvc/pkg/uuid"
)

type repositoryFactory func(t *testing.T) RefreshTokenRepository

func newMiniredisRepository(t *testing.T) (*RedisRefreshTokenRepository, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRefreshTokenRepository(client), client
}

var repositoryBackends = map[string]repositoryFactory{
	"memory": func(t *testing.T) RefreshTokenRepository {
		return NewMemoryRefreshTokenRepository()
	},
	"redis": func(t *testing.T) RefreshTokenRepository {
		repository, _ := newMiniredisRepository(t)
		return repository
	},
}

func newRecordFor(userID string, expiresAt time.Time) *RefreshToken {
	plaintext, _ := sec.GenerateSecureToken(RefreshTokenLength)
	return &RefreshToken{
		ID:        uuid.New(),
		TokenHash: sec.HashToken(plaintext),
		UserID:    userID,
		ExpiresAt: expiresAt.Truncate(time.Microsecond),
		CreatedAt: expiresAt.Add(-time.Hour).Truncate(time.Microsecond),
	}
}

func TestRefreshTokenRepositories(t *testing.T) {
	for name, factory := range repositoryBackends {
		t.Run(name, func(t *testing.T) {
			t.Run("create_and_find", func(t *testing.T) {
				repository := factory(t)
				ctx := context.Background()
				record := newRecordFor("user-1", time.Now().Add(time.Hour))

				require.NoError(t, repository.Create(ctx, record))

				found, err := repository.FindByHash(ctx, record.TokenHash)
				require.NoError(t, err)
				assert.Equal(t, record.ID, found.ID)
				assert.Equal(t, record.UserID, found.UserID)
				assert.True(t, record.ExpiresAt.Equal(found.ExpiresAt))
				assert.True(t, record.CreatedAt.Equal(found.CreatedAt))
				assert.False(t, found.Revoked)

				err = repository.Create(ctx, record)
				assert.True(t, apperr.IsCode(err, "CONFLICT"), "duplicate hash")
			})

			t.Run("find_missing", func(t *testing.T) {
				repository := factory(t)
				_, err := repository.FindByHash(context.Background(), sec.HashToken("missing"))
				assert.True(t, dberr.IsNotFound(err))
			})

			t.Run("revoke", func(t *testing.T) {
				repository := factory(t)
				ctx := context.Background()
				record := newRecordFor("user-1", time.Now().Add(time.Hour))
				require.NoError(t, repository.Create(ctx, record))

				require.NoError(t, repository.RevokeByHash(ctx, record.TokenHash))
				require.NoError(t, repository.RevokeByHash(ctx, record.TokenHash))
				require.NoError(t, repository.RevokeByHash(ctx, sec.HashToken("missing")))

				found, err := repository.FindByHash(ctx, record.TokenHash)
				require.NoError(t, err)
				assert.True(t, found.Revoked)

				_, err = repository.FindByHash(ctx, sec.HashToken("missing"))
				assert.True(t, dberr.IsNotFound(err), "revoking a missing hash creates nothing")
			})

			t.Run("revoke_all", func(t *testing.T) {
				repository := factory(t)
				ctx := context.Background()
				expiresAt := time.Now().Add(time.Hour)

				mine := []*RefreshToken{newRecordFor("user-1", expiresAt), newRecordFor("user-1", expiresAt), newRecordFor("user-1", expiresAt)}
				theirs := newRecordFor("user-2", expiresAt)
				for _, record := range append(mine, theirs) {
					require.NoError(t, repository.Create(ctx, record))
				}
				require.NoError(t, repository.RevokeByHash(ctx, mine[0].TokenHash))

				count, err := repository.RevokeAllForUser(ctx, "user-1")
				require.NoError(t, err)
				assert.EqualValues(t, 2, count)

				for _, record := range mine {
					found, err := repository.FindByHash(ctx, record.TokenHash)
					require.NoError(t, err)
					assert.True(t, found.Revoked)
				}

				found, err := repository.FindByHash(ctx, theirs.TokenHash)
				require.NoError(t, err)
				assert.False(t, found.Revoked)
			})

			t.Run("delete_expired", func(t *testing.T) {
				repository := factory(t)
				ctx := context.Background()
				cutoff := time.Now().Truncate(time.Microsecond)

				expired := newRecordFor("user-1", cutoff.Add(-time.Second))
				boundary := newRecordFor("user-1", cutoff)
				live := newRecordFor("user-1", cutoff.Add(time.Hour))
				for _, record := range []*RefreshToken{expired, boundary, live} {
					require.NoError(t, repository.Create(ctx, record))
				}

				count, err := repository.DeleteExpired(ctx, cutoff)
				require.NoError(t, err)
				assert.EqualValues(t, 1, count)

				_, err = repository.FindByHash(ctx, expired.TokenHash)
				assert.True(t, dberr.IsNotFound(err))
				_, err = repository.FindByHash(ctx, boundary.TokenHash)
				assert.NoError(t, err)
				_, err = repository.FindByHash(ctx, live.TokenHash)
				assert.NoError(t, err)
			})

			t.Run("rotate", func(t *testing.T) {
				repository := factory(t)
				ctx := context.Background()
				expiresAt := time.Now().Add(time.Hour)
				old := newRecordFor("user-1", expiresAt)
				next := newRecordFor("user-1", expiresAt)
				require.NoError(t, repository.Create(ctx, old))

				rotated, err := repository.Rotate(ctx, old.TokenHash, next)
				require.NoError(t, err)
				assert.True(t, rotated)

				found, err := repository.FindByHash(ctx, old.TokenHash)
				require.NoError(t, err)
				assert.True(t, found.Revoked)

				found, err = repository.FindByHash(ctx, next.TokenHash)
				require.NoError(t, err)
				assert.False(t, found.Revoked)

				again := newRecordFor("user-1", expiresAt)
				rotated, err = repository.Rotate(ctx, old.TokenHash, again)
				require.NoError(t, err)
				assert.False(t, rotated)

				_, err = repository.FindByHash(ctx, again.TokenHash)
				assert.True(t, dberr.IsNotFound(err), "a lost rotation writes nothing")

				rotated, err = repository.Rotate(ctx, sec.HashToken("missing"), newRecordFor("user-1", expiresAt))
				require.NoError(t, err)
				assert.False(t, rotated)
			})
		})
	}
}

// TestConcurrentRotation races two rotations of the same token. Exactly one
// wins; the loser observes reuse and the winner's replacement is revoked.
func TestConcurrentRotation(t *testing.T) {
	for name, factory := range repositoryBackends {
		t.Run(name, func(t *testing.T) {
			env := newTestEnvWith(t, factory(t))
			env.seedUser(t, "ada@example.com", "ada")
			ctx := context.Background()

			pair, _, err := env.sessions.Login(ctx, "ada", testPassword)
			require.NoError(t, err)

			const racers = 2
			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				results = make([]error, racers)
				pairs   = make([]*TokenPair, racers)
			)

			for i := range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					pairs[i], _, results[i] = env.sessions.Rotate(ctx, pair.RefreshToken)
				}()
			}
			close(start)
			wg.Wait()

			var successes, reuses int
			var winner *TokenPair
			for i, err := range results {
				switch {
				case err == nil:
					successes++
					winner = pairs[i]
				case assert.ErrorIs(t, err, ErrTokenReuseDetected):
					reuses++
				}
			}

			require.Equal(t, 1, successes)
			require.Equal(t, racers-1, reuses)

			_, _, err = env.sessions.Rotate(ctx, winner.RefreshToken)
			assert.ErrorIs(t, err, ErrTokenReuseDetected)
		})
	}
}

func TestRedisRepository_KeyLayout(t *testing.T) {
	repository, client := newMiniredisRepository(t)
	ctx := context.Background()
	record := newRecordFor("user-1", time.Now().Add(time.Hour))

	require.NoError(t, repository.Create(ctx, record))

	key := tokenKey(record.TokenHash)
	fields, err := client.HGetAll(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "user-1", fields[fieldUserID])
	assert.Equal(t, "0", fields[fieldRevoked])

	ttl, err := client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour, "records outlive their logical expiry")

	members, err := client.SMembers(ctx, userTokensKey("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{record.TokenHash}, members)

	indexTTL, err := client.PTTL(ctx, userTokensKey("user-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, indexTTL, time.Hour, "the index expires with its records")

	_, err = repository.DeleteExpired(ctx, record.ExpiresAt.Add(time.Second))
	require.NoError(t, err)

	exists, err := client.Exists(ctx, key, userTokensKey("user-1")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "record and emptied index are gone")
}

func TestRedisRepository_CorruptRecord(t *testing.T) {
	repository, client := newMiniredisRepository(t)
	ctx := context.Background()
	hash := sec.HashToken("corrupt")
	require.NoError(t, client.HSet(ctx, tokenKey(hash), fieldUserID, "user-1", fieldExpiresAt, "not-a-number").Err())

	_, err := repository.FindByHash(ctx, hash)
	require.Error(t, err)
	assert.False(t, dberr.IsNotFound(err))
}

// TestRedisRepository_ClockIndependentExpiry issues and verifies tokens with an
// injected clock far from the server's wall clock.
func TestRedisRepository_ClockIndependentExpiry(t *testing.T) {
	offsets := map[string]time.Duration{
		"behind": -14 * 24 * time.Hour,
		"ahead":  30 * 24 * time.Hour,
	}

	for name, offset := range offsets {
		t.Run(name, func(t *testing.T) {
			repository, client := newMiniredisRepository(t)
			ctx := context.Background()
			now := func() time.Time { return time.Now().Add(offset) }
			store := NewRefreshStore(repository, now, discardLogger())

			record, err := store.Save(ctx, "user-1", "opaque-token", testRefreshTTL)
			require.NoError(t, err)

			found, err := store.Verify(ctx, "opaque-token")
			require.NoError(t, err)
			assert.Equal(t, record.ID, found.ID)

			ttl, err := client.PTTL(ctx, tokenKey(record.TokenHash)).Result()
			require.NoError(t, err)
			assert.InDelta(t, float64(testRefreshTTL+redisExpiryGrace), float64(ttl), float64(time.Minute))

			_, err = store.Exchange(ctx, found, "next-token", testRefreshTTL)
			require.NoError(t, err)
			_, err = store.Verify(ctx, "next-token")
			assert.NoError(t, err)
		})
	}
}

// TestRedisRepository_PrunesDanglingIndexEntries removes index entries whose
// record Redis already expired on its own.
func TestRedisRepository_PrunesDanglingIndexEntries(t *testing.T) {
	repository, client := newMiniredisRepository(t)
	ctx := context.Background()
	gone := newRecordFor("user-1", time.Now().Add(time.Hour))
	kept := newRecordFor("user-1", time.Now().Add(time.Hour))
	require.NoError(t, repository.Create(ctx, gone))
	require.NoError(t, repository.Create(ctx, kept))

	require.NoError(t, client.Del(ctx, tokenKey(gone.TokenHash)).Err())

	count, err := repository.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)

	members, err := client.SMembers(ctx, userTokensKey("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{kept.TokenHash}, members)
}
