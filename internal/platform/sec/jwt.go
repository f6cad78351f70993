// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (password hashing, JWT signing,
// refresh token generation) from the domain logic. It acts as an Infrastructure
// service injected into the Application layer via small interfaces.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum byte length of an HS256 signing secret.
const MinSecretLength = 32

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the email and username directly inside the JWT, handlers can
// reconstruct the caller's identity WITHOUT querying the database on every request.
type AuthClaims struct {
	jwt.RegisteredClaims

	Email    string `json:"email"`
	Username string `json:"username"`
}

// UserID returns the subject claim.
func (c *AuthClaims) UserID() string {
	return c.Subject
}

// TokenConfig configures a [TokenService].
type TokenConfig struct {
	// Secret signs new tokens. KeyID is written to the "kid" header.
	Secret []byte
	KeyID  string

	// PreviousSecrets still verify tokens signed before a key rotation.
	PreviousSecrets map[string][]byte

	Issuer    string
	AccessTTL time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenService handles generation and verification of JWT tokens using HS256.
type TokenService struct {
	keyID     string
	keys      map[string][]byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenService validates the signing configuration.
//
// A failure here is a startup-class misconfiguration; callers should abort.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("sec: signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.KeyID == "" {
		return nil, errors.New("sec: signing key id must not be empty")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("sec: access token TTL must be positive")
	}

	keys := map[string][]byte{cfg.KeyID: cfg.Secret}
	for kid, secret := range cfg.PreviousSecrets {
		if kid == cfg.KeyID {
			return nil, fmt.Errorf("sec: previous key %q collides with active key", kid)
		}
		if len(secret) < MinSecretLength {
			return nil, fmt.Errorf("sec: previous key %q is shorter than %d bytes", kid, MinSecretLength)
		}
		keys[kid] = secret
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		keyID:     cfg.KeyID,
		keys:      keys,
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		now:       now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (service *TokenService) AccessTTL() time.Duration {
	return service.accessTTL
}

// GenerateAccessToken creates a new signed JWT access token for a user.
// The same input and clock always produce the same token.
func (service *TokenService) GenerateAccessToken(userID, email, username string) (string, time.Time, error) {
	issuedAt := service.now()
	expiresAt := issuedAt.Add(service.accessTTL)

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    email,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = service.keyID

	signedToken, err := token.SignedString(service.keys[service.keyID])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// VerifyToken checks the signature and validity of a JWT string.
//
// Expiry is enforced by the jwt parser against the service clock.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(service.now),
	}
	if service.issuer != "" {
		options = append(options, jwt.WithIssuer(service.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, service.keyFunc, options...)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("sec: invalid token claims")
	}

	return claims, nil
}

// keyFunc resolves the verification secret from the "kid" header.
func (service *TokenService) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		kid = service.keyID
	}
	key, ok := service.keys[kid]
	if !ok {
		return nil, fmt.Errorf("sec: unknown signing key %q", kid)
	}
	return key, nil
}
