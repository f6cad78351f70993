// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements password login, access/refresh token issuance, and
single-use refresh token rotation with reuse detection.

# Architecture

  - SessionManager: Orchestrates login, rotation, logout and registration.
  - RefreshStore: Hashes, persists and verifies refresh tokens, and revokes every
    token of a user when a revoked token is presented again.
  - Repositories: PostgreSQL, Redis and in-memory backends behind
    [RefreshTokenRepository]; PostgreSQL and in-memory behind [UserRepository].
  - Authenticators: Explicit per-route credential strategies (password, bearer).

Only the SHA-256 hash of a refresh token is ever stored. The plaintext exists
in the response to the client and nowhere else.
*/
package auth

import (
	"time"

	"github.com/taibuivan/authsvc/internal/platform/sec"
)

// # Domain Entities

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is the persisted state of one issued refresh token.
//
// # Rules
//   - TokenHash is hex(SHA-256(plaintext)) and unique across all records.
//   - Revoked only ever transitions from false to true.
//   - Records may be deleted once ExpiresAt has passed.
type RefreshToken struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is what a successful login or rotation hands back to the client.
//
// The expiry timestamps are informational (cookie lifetimes); enforcement
// happens in the token service and the refresh store.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// Principal is the identity an [Authenticator] established for a request.
type Principal struct {
	User *User

	// Claims is set when the principal was authenticated by an access token.
	Claims *sec.AuthClaims

	// Tokens is set when authentication itself issued a new pair (password login).
	Tokens *TokenPair
}

// # Field Identifiers

const (
	FieldIdentifier           = "identifier"
	FieldEmail                = "email"
	FieldName                 = "name"
	FieldPassword             = "password"
	FieldPasswordConfirmation = "passwordConfirmation"
	FieldRefreshToken         = "refreshToken"
	FieldAccessToken          = "accessToken"
	FieldUser                 = "user"
	FieldMessage              = "message"
)
