// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/sec"
)

// countingHasher records how often Verify ran.
type countingHasher struct {
	CredentialHasher
	verifies int
}

func (h *countingHasher) Verify(storedHash, candidate string) bool {
	h.verifies++
	return h.CredentialHasher.Verify(storedHash, candidate)
}

func TestLogin_ByEmailAndUsername(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	for _, identifier := range []string{"ada@example.com", "  ADA@Example.com ", "ada"} {
		pair, got, err := env.sessions.Login(ctx, identifier, testPassword)
		require.NoError(t, err, identifier)
		assert.Equal(t, user.ID, got.ID)

		claims, err := env.tokenSvc.VerifyToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID())
		assert.Equal(t, "ada", claims.Username)

		assert.Len(t, pair.RefreshToken, RefreshTokenLength*2)
		assert.Equal(t, env.clock.Now().Add(testRefreshTTL), pair.RefreshTokenExpiresAt)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	_, _, unknownErr := env.sessions.Login(ctx, "nobody@example.com", testPassword)
	_, _, wrongErr := env.sessions.Login(ctx, "ada@example.com", "Wr0ngPassword")

	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLogin_UnknownIdentifierStillHashes(t *testing.T) {
	env := newTestEnv(t)
	hasher := &countingHasher{CredentialHasher: env.hasher}

	sessions, err := NewSessionManager(env.users, env.store, env.issuer, hasher, discardLogger())
	require.NoError(t, err)

	_, _, err = sessions.Login(context.Background(), "ghost@example.com", testPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, hasher.verifies)
}

func TestLogin_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.sessions.Login(context.Background(), "ab", testPassword)
	assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))

	_, _, err = env.sessions.Login(context.Background(), "ada@example.com", "")
	assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))
}

func TestRotate_IssuesNewPairAndRetiresOld(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	first, _, err := env.sessions.Login(ctx, "ada", testPassword)
	require.NoError(t, err)

	second, got, err := env.sessions.Rotate(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Replaying the retired token is theft: the whole family dies.
	_, _, err = env.sessions.Rotate(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)

	_, _, err = env.sessions.Rotate(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)
}

func TestRotate_RefreshErrorsShareMessage(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	_, _, invalid := env.sessions.Rotate(ctx, "not-a-token")

	pair, _, err := env.sessions.Login(ctx, "ada", testPassword)
	require.NoError(t, err)
	env.clock.Advance(testRefreshTTL + time.Second)
	_, _, expired := env.sessions.Rotate(ctx, pair.RefreshToken)

	require.ErrorIs(t, invalid, ErrInvalidToken)
	require.ErrorIs(t, expired, ErrTokenExpired)
	assert.Equal(t, invalid.Error(), expired.Error())
	assert.Equal(t, invalid.Error(), ErrTokenReuseDetected.Error())
}

func TestRotate_OrphanedUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	pair, _, err := env.sessions.Login(ctx, "ada", testPassword)
	require.NoError(t, err)

	env.users.Delete(user.ID)

	_, _, err = env.sessions.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	record, err := env.tokens.FindByHash(ctx, sec.HashToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, record.Revoked)
}

func TestLogout_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	pair, _, err := env.sessions.Login(ctx, "ada", testPassword)
	require.NoError(t, err)

	require.NoError(t, env.sessions.Logout(ctx, pair.RefreshToken))
	require.NoError(t, env.sessions.Logout(ctx, pair.RefreshToken))
	require.NoError(t, env.sessions.Logout(ctx, "unknown"))
	require.NoError(t, env.sessions.Logout(ctx, ""))

	_, _, err = env.sessions.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com", "ada")
	ctx := context.Background()

	var pairs []*TokenPair
	for range 2 {
		pair, _, err := env.sessions.Login(ctx, "ada", testPassword)
		require.NoError(t, err)
		pairs = append(pairs, pair)
	}

	count, err := env.sessions.LogoutAll(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	for _, pair := range pairs {
		_, _, err := env.sessions.Rotate(ctx, pair.RefreshToken)
		assert.Error(t, err)
	}
}

func TestRegister_CreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.sessions.Register(ctx, RegisterInput{
		Email:                " Ada@Example.com",
		Name:                 "Adá Lovelace",
		Password:             testPassword,
		PasswordConfirmation: testPassword,
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Adá Lovelace", user.Name)
	assert.Regexp(t, regexp.MustCompile(`^adalovelace\d{4}$`), user.Username)
	assert.Contains(t, user.Avatar, "name=AL")
	assert.True(t, env.hasher.Verify(user.PasswordHash, testPassword))

	_, got, err := env.sessions.Login(ctx, user.Username, testPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"bad_email", RegisterInput{Email: "nope", Name: "Ada", Password: testPassword, PasswordConfirmation: testPassword}, FieldEmail},
		{"short_name", RegisterInput{Email: "a@example.com", Name: "A", Password: testPassword, PasswordConfirmation: testPassword}, FieldName},
		{"control_chars_in_name", RegisterInput{Email: "a@example.com", Name: "Ada\x00Lovelace", Password: testPassword, PasswordConfirmation: testPassword}, FieldName},
		{"weak_password", RegisterInput{Email: "a@example.com", Name: "Ada", Password: "alllowercase", PasswordConfirmation: "alllowercase"}, FieldPassword},
		{"mismatch", RegisterInput{Email: "a@example.com", Name: "Ada", Password: testPassword, PasswordConfirmation: testPassword + "x"}, FieldPasswordConfirmation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sessions.Register(context.Background(), tt.input)
			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

			var fields []string
			for _, detail := range appErr.Details {
				fields = append(fields, detail.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestRegister_EmailTaken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", "ada")

	_, err := env.sessions.Register(context.Background(), RegisterInput{
		Email:                "ADA@example.com",
		Name:                 "Ada",
		Password:             testPassword,
		PasswordConfirmation: testPassword,
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com", "ada")

	got, err := env.sessions.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = env.sessions.Me(context.Background(), "missing")
	assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
}

func TestIsRefreshFailure(t *testing.T) {
	assert.True(t, isRefreshFailure(ErrInvalidToken))
	assert.True(t, isRefreshFailure(ErrTokenExpired))
	assert.True(t, isRefreshFailure(ErrTokenReuseDetected))
	assert.False(t, isRefreshFailure(ErrInvalidCredentials))
	assert.False(t, isRefreshFailure(errors.New("other")))
}
