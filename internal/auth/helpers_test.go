// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authsvc/internal/platform/sec"
	"github.com/taibuivan/authsvc/pkg/uuid"
)

const (
	testPassword   = "Sup3rSecret"
	testRefreshTTL = 7 * 24 * time.Hour
)

var testSecret = []byte(strings.Repeat("t", sec.MinSecretLength))

// testClock is a settable clock shared by the token service and the store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv is a fully wired session stack over in-memory repositories.
type testEnv struct {
	clock    *testClock
	users    *MemoryUserRepository
	tokens   *MemoryRefreshTokenRepository
	store    *RefreshStore
	tokenSvc *sec.TokenService
	hasher   *sec.PasswordHasher
	issuer   *Issuer
	sessions *SessionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, NewMemoryRefreshTokenRepository())
}

func newTestEnvWith(t *testing.T, tokens RefreshTokenRepository) *testEnv {
	t.Helper()

	clock := newTestClock()

	tokenSvc, err := sec.NewTokenService(sec.TokenConfig{
		Secret:    testSecret,
		KeyID:     "k1",
		Issuer:    "authsvc-test",
		AccessTTL: 15 * time.Minute,
		Now:       clock.Now,
	})
	require.NoError(t, err)

	hasher, err := sec.NewPasswordHasher(sec.Argon2Params{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1})
	require.NoError(t, err)

	issuer, err := NewIssuer(tokenSvc, testRefreshTTL)
	require.NoError(t, err)

	users := NewMemoryUserRepository()
	store := NewRefreshStore(tokens, clock.Now, discardLogger())

	sessions, err := NewSessionManager(users, store, issuer, hasher, discardLogger())
	require.NoError(t, err)

	env := &testEnv{
		clock:    clock,
		users:    users,
		store:    store,
		tokenSvc: tokenSvc,
		hasher:   hasher,
		issuer:   issuer,
		sessions: sessions,
	}
	if memory, ok := tokens.(*MemoryRefreshTokenRepository); ok {
		env.tokens = memory
	}
	return env
}

// seedUser stores an account whose password is testPassword.
func (env *testEnv) seedUser(t *testing.T, email, username string) *User {
	t.Helper()

	passwordHash, err := env.hasher.Hash(testPassword)
	require.NoError(t, err)

	now := env.clock.Now()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		Name:         "Ada Lovelace",
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, env.users.Create(context.Background(), user))
	return user
}
