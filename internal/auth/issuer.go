// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/authsvc/internal/platform/sec"
)

// AccessTokenSigner mints signed access tokens. [*sec.TokenService] implements it.
type AccessTokenSigner interface {
	GenerateAccessToken(userID, email, username string) (string, time.Time, error)
}

// Issuer produces the two halves of a [TokenPair].
type Issuer struct {
	signer     AccessTokenSigner
	refreshTTL time.Duration
}

// NewIssuer validates its configuration up front so a bad TTL fails at startup.
func NewIssuer(signer AccessTokenSigner, refreshTTL time.Duration) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("auth: issuer requires an access token signer")
	}
	if refreshTTL <= 0 {
		return nil, fmt.Errorf("auth: refresh token ttl must be positive, got %s", refreshTTL)
	}
	return &Issuer{signer: signer, refreshTTL: refreshTTL}, nil
}

// RefreshTTL is the lifetime given to every new refresh token.
func (issuer *Issuer) RefreshTTL() time.Duration {
	return issuer.refreshTTL
}

// IssueAccessToken signs a short-lived access token for user.
func (issuer *Issuer) IssueAccessToken(user *User) (string, time.Time, error) {
	token, expiresAt, err := issuer.signer.GenerateAccessToken(user.ID, user.Email, user.Username)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth_issuer_access_token_failed: %w", err)
	}
	return token, expiresAt, nil
}

// IssueRefreshToken returns a new opaque refresh token and its storage hash.
func (issuer *Issuer) IssueRefreshToken() (plaintext, hash string, err error) {
	plaintext, err = sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return "", "", fmt.Errorf("auth_issuer_refresh_token_failed: %w", err)
	}
	return plaintext, sec.HashToken(plaintext), nil
}
