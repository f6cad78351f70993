// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/authsvc/internal/platform/constants"
	"github.com/taibuivan/authsvc/internal/platform/middleware"
	requestutil "github.com/taibuivan/authsvc/internal/platform/request"
	"github.com/taibuivan/authsvc/internal/platform/respond"
)

// # Definitions & Constructors

// CookieConfig controls the attributes of the token cookies.
type CookieConfig struct {
	Secure bool
	Domain string
}

// Handler exposes the session lifecycle over HTTP.
//
// # Transport
//
// Tokens travel both as HttpOnly cookies (browsers) and in the JSON body
// (stateless clients). The refresh endpoint accepts either source.
type Handler struct {
	sessions *SessionManager
	password Authenticator
	bearer   Authenticator
	cookies  CookieConfig
	limiter  *middleware.RateLimiter
}

// NewHandler constructs a [Handler]. A nil limiter disables rate limiting.
func NewHandler(
	sessions *SessionManager,
	password Authenticator,
	bearer Authenticator,
	cookies CookieConfig,
	limiter *middleware.RateLimiter,
) *Handler {
	return &Handler{
		sessions: sessions,
		password: password,
		bearer:   bearer,
		cookies:  cookies,
		limiter:  limiter,
	}
}

// Routes returns a [chi.Router] with the authentication endpoints.
//
// # Endpoints
//   - POST /register   : Creates a new account.
//   - POST /login      : Authenticates and issues a token pair.
//   - POST /refresh    : Rotates a refresh token.
//   - POST /logout     : Revokes one refresh token.
//   - POST /logout-all : Revokes every refresh token of the caller.
//   - GET  /me         : Returns the caller's account.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Credential-bearing endpoints
	router.Group(func(r chi.Router) {
		if handler.limiter != nil {
			r.Use(handler.limiter.Handler)
		}
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)
	})

	router.Post("/logout", handler.logout)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(RequireAuth(handler.bearer))
		r.Post("/logout-all", handler.logoutAll)
		r.Get("/me", handler.me)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email                string `json:"email"`
	Name                 string `json:"name"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

/*
Register creates a new account.

POST /api/v1/auth/register

Response:
  - 201: {user}
  - 400: VALIDATION_ERROR or invalid JSON
  - 409: Email already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.sessions.Register(request.Context(), RegisterInput(input))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]any{FieldUser: user})
}

/*
Login authenticates with the password strategy and sets both token cookies.

POST /api/v1/auth/login

Response:
  - 200: {user, accessToken, refreshToken}
  - 401: Invalid credentials
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	principal, err := handler.password.Authenticate(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setTokenCookies(writer, principal.Tokens)
	respond.OK(writer, map[string]any{
		FieldUser:         principal.User,
		FieldAccessToken:  principal.Tokens.AccessToken,
		FieldRefreshToken: principal.Tokens.RefreshToken,
	})
}

/*
Refresh rotates the presented refresh token.

POST /api/v1/auth/refresh

Description: The token is read from the refresh cookie, or from the
"refreshToken" body field. Any refresh failure clears the cookies so the
client stops presenting a dead token.

Response:
  - 200: {user, accessToken, refreshToken}
  - 401: Missing, invalid, expired or reused refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	token, err := refreshTokenFrom(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if token == "" {
		respond.Error(writer, request, ErrRefreshTokenMissing)
		return
	}

	pair, user, err := handler.sessions.Rotate(request.Context(), token)
	if err != nil {
		if isRefreshFailure(err) {
			handler.clearTokenCookies(writer)
		}
		respond.Error(writer, request, err)
		return
	}

	handler.setTokenCookies(writer, pair)
	respond.OK(writer, map[string]any{
		FieldUser:         user,
		FieldAccessToken:  pair.AccessToken,
		FieldRefreshToken: pair.RefreshToken,
	})
}

/*
Logout revokes the presented refresh token, if any, and clears the cookies.

POST /api/v1/auth/logout

Response:
  - 200: {message}, even when the body is malformed
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	// A malformed body counts as no token.
	token, _ := refreshTokenFrom(request)

	_ = handler.sessions.Logout(request.Context(), token)

	handler.clearTokenCookies(writer)
	respond.OK(writer, map[string]string{FieldMessage: "Logout successful"})
}

/*
LogoutAll revokes every refresh token of the authenticated user.

POST /api/v1/auth/logout-all

Response:
  - 200: {message, revoked}
  - 401: Authentication required
*/
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	count, err := handler.sessions.LogoutAll(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearTokenCookies(writer)
	respond.OK(writer, map[string]any{
		FieldMessage: "Logged out from all devices",
		"revoked":    count,
	})
}

// me returns the authenticated account (GET /api/v1/auth/me).
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.sessions.Me(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldUser: user})
}

// # Cookie Helpers

// refreshTokenFrom prefers the cookie and falls back to the JSON body.
func refreshTokenFrom(request *http.Request) (string, error) {
	if token := requestutil.Cookie(request, constants.RefreshTokenCookieName); token != "" {
		return token, nil
	}

	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		return "", err
	}
	return input.RefreshToken, nil
}

func (handler *Handler) setTokenCookies(writer http.ResponseWriter, pair *TokenPair) {
	http.SetCookie(writer, handler.cookie(constants.AccessTokenCookieName, pair.AccessToken, "/", pair.AccessTokenExpiresAt))
	http.SetCookie(writer, handler.cookie(constants.RefreshTokenCookieName, pair.RefreshToken, constants.RefreshTokenCookiePath, pair.RefreshTokenExpiresAt))
}

func (handler *Handler) clearTokenCookies(writer http.ResponseWriter) {
	for _, cookie := range []*http.Cookie{
		handler.cookie(constants.AccessTokenCookieName, "", "/", time.Time{}),
		handler.cookie(constants.RefreshTokenCookieName, "", constants.RefreshTokenCookiePath, time.Time{}),
	} {
		cookie.MaxAge = -1
		http.SetCookie(writer, cookie)
	}
}

func (handler *Handler) cookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   handler.cookies.Domain,
		Expires:  expires,
		Secure:   handler.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
