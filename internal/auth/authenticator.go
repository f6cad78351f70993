// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"
	"net/http"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/constants"
	"github.com/taibuivan/authsvc/internal/platform/ctxutil"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
	requestutil "github.com/taibuivan/authsvc/internal/platform/request"
	"github.com/taibuivan/authsvc/internal/platform/respond"
	"github.com/taibuivan/authsvc/internal/platform/sec"
)

// Authenticator establishes who is making a request.
//
// Routes pick an implementation explicitly; there is no global registry.
type Authenticator interface {
	Authenticate(request *http.Request) (*Principal, error)
}

// AccessTokenVerifier validates access tokens. [*sec.TokenService] implements it.
type AccessTokenVerifier interface {
	VerifyToken(tokenStr string) (*sec.AuthClaims, error)
}

// # Password Strategy

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// PasswordStrategy authenticates an {identifier, password} JSON body and
// issues a token pair on success.
type PasswordStrategy struct {
	sessions *SessionManager
}

// NewPasswordStrategy creates a [PasswordStrategy].
func NewPasswordStrategy(sessions *SessionManager) *PasswordStrategy {
	return &PasswordStrategy{sessions: sessions}
}

// Authenticate implements [Authenticator].
func (strategy *PasswordStrategy) Authenticate(request *http.Request) (*Principal, error) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		return nil, err
	}

	pair, user, err := strategy.sessions.Login(request.Context(), input.Identifier, input.Password)
	if err != nil {
		return nil, err
	}

	return &Principal{User: user, Tokens: pair}, nil
}

// # Bearer Token Strategy

// errInvalidAccessToken covers malformed, forged and expired access tokens alike.
var errInvalidAccessToken = apperr.Unauthorized("Invalid or expired token")

// BearerTokenStrategy authenticates an access token from the Authorization
// header, falling back to the access token cookie, and confirms the user
// still exists.
type BearerTokenStrategy struct {
	verifier AccessTokenVerifier
	users    UserRepository
}

// NewBearerTokenStrategy creates a [BearerTokenStrategy].
func NewBearerTokenStrategy(verifier AccessTokenVerifier, users UserRepository) *BearerTokenStrategy {
	return &BearerTokenStrategy{verifier: verifier, users: users}
}

// Authenticate implements [Authenticator].
func (strategy *BearerTokenStrategy) Authenticate(request *http.Request) (*Principal, error) {
	token := requestutil.BearerToken(request)
	if token == "" {
		token = requestutil.Cookie(request, constants.AccessTokenCookieName)
	}
	if token == "" {
		return nil, ErrAuthRequired
	}

	claims, err := strategy.verifier.VerifyToken(token)
	if err != nil {
		return nil, errInvalidAccessToken
	}

	user, err := strategy.users.FindByID(request.Context(), claims.UserID())
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrAuthRequired
		}
		return nil, apperr.Internal(fmt.Errorf("auth_bearer_user_lookup_failed: %w", err))
	}

	return &Principal{User: user, Claims: claims}, nil
}

// # Route Guard

// RequireAuth rejects requests the authenticator does not accept and exposes
// the access token claims of the resulting [Principal] to downstream handlers
// through [ctxutil.WithAuthUser]. The authenticator must yield claims.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal, err := authenticator.Authenticate(request)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			if principal.Claims == nil {
				respond.Error(writer, request, ErrAuthRequired)
				return
			}

			ctx := ctxutil.WithAuthUser(request.Context(), principal.Claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}
