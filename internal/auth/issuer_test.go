// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authsvc/internal/platform/sec"
)

func TestNewIssuer_Validation(t *testing.T) {
	_, err := NewIssuer(nil, time.Hour)
	assert.Error(t, err)

	env := newTestEnv(t)
	_, err = NewIssuer(env.tokenSvc, 0)
	assert.Error(t, err)
}

func TestIssuer_RefreshToken(t *testing.T) {
	env := newTestEnv(t)

	plaintext, hash, err := env.issuer.IssueRefreshToken()
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{64}$`, plaintext)
	assert.Equal(t, sec.HashToken(plaintext), hash)
	assert.Equal(t, testRefreshTTL, env.issuer.RefreshTTL())
}

func TestIssuer_AccessTokenCarriesIdentity(t *testing.T) {
	env := newTestEnv(t)
	user := &User{ID: "user-1", Email: "ada@example.com", Username: "ada"}

	token, expiresAt, err := env.issuer.IssueAccessToken(user)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(15*time.Minute), expiresAt)

	claims, err := env.tokenSvc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "ada@example.com", normalizeIdentifier("  ADA@Example.COM\t"))
	// "E" + combining acute composes to a single rune before lowering.
	assert.Equal(t, "\u00e9lo\u00efse", normalizeIdentifier("E\u0301lo\u00cfse"))
}

func TestAvatarURL(t *testing.T) {
	assert.Contains(t, avatarURL("ada lovelace byron"), "name=AL&")
	assert.Contains(t, avatarURL("\u00c9lodie"), "name=%C3%89&")
}
