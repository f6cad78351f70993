// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
)

// # Memory User Repository

// MemoryUserRepository keeps accounts in process memory. It backs tests and
// TOKEN_STORE=memory development runs.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*User)}
}

// FindByIdentifier implements [UserRepository].
func (repository *MemoryUserRepository) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	for _, user := range repository.users {
		if user.Email == identifier || user.Username == identifier {
			clone := *user
			return &clone, nil
		}
	}
	return nil, dberr.ErrNotFound
}

// FindByID implements [UserRepository].
func (repository *MemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	user, ok := repository.users[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// Create implements [UserRepository].
func (repository *MemoryUserRepository) Create(_ context.Context, user *User) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	for _, existing := range repository.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return apperr.Conflict("Resource already exists")
		}
	}
	clone := *user
	repository.users[user.ID] = &clone
	return nil
}

// ExistsByEmail implements [UserRepository].
func (repository *MemoryUserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	for _, user := range repository.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// ExistsByUsername implements [UserRepository].
func (repository *MemoryUserRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	for _, user := range repository.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes an account. Used by tests to simulate a deleted user.
func (repository *MemoryUserRepository) Delete(id string) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	delete(repository.users, id)
}

// # Memory Refresh Token Repository

// MemoryRefreshTokenRepository keeps refresh token records in process memory.
//
// A single mutex serializes every operation, which makes Rotate trivially
// atomic.
type MemoryRefreshTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
}

// NewMemoryRefreshTokenRepository creates an empty repository.
func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{byHash: make(map[string]*RefreshToken)}
}

// Create implements [RefreshTokenRepository].
func (repository *MemoryRefreshTokenRepository) Create(_ context.Context, token *RefreshToken) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	return repository.insertLocked(token)
}

func (repository *MemoryRefreshTokenRepository) insertLocked(token *RefreshToken) error {
	if _, exists := repository.byHash[token.TokenHash]; exists {
		return apperr.Conflict("Resource already exists")
	}
	clone := *token
	repository.byHash[token.TokenHash] = &clone
	return nil
}

// FindByHash implements [RefreshTokenRepository].
func (repository *MemoryRefreshTokenRepository) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	token, ok := repository.byHash[tokenHash]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

// RevokeByHash implements [RefreshTokenRepository].
func (repository *MemoryRefreshTokenRepository) RevokeByHash(_ context.Context, tokenHash string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if token, ok := repository.byHash[tokenHash]; ok {
		token.Revoked = true
	}
	return nil
}

// RevokeAllForUser implements [RefreshTokenRepository].
func (repository *MemoryRefreshTokenRepository) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var count int64
	for _, token := range repository.byHash {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			count++
		}
	}
	return count, nil
}

// DeleteExpired implements [RefreshTokenRepository].
func (repository *MemoryRefreshTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var count int64
	for hash, token := range repository.byHash {
		if token.ExpiresAt.Before(before) {
			delete(repository.byHash, hash)
			count++
		}
	}
	return count, nil
}

// Rotate implements [RefreshTokenRepository].
func (repository *MemoryRefreshTokenRepository) Rotate(_ context.Context, oldHash string, next *RefreshToken) (bool, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	old, ok := repository.byHash[oldHash]
	if !ok || old.Revoked {
		return false, nil
	}
	if err := repository.insertLocked(next); err != nil {
		return false, err
	}
	old.Revoked = true
	return true, nil
}
