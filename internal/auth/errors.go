// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "github.com/taibuivan/authsvc/internal/platform/apperr"

// Server-side reasons attached to shared client messages. They are logged,
// never serialized.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTokenInvalid       = "token_invalid"
	ReasonTokenExpired       = "token_expired"
	ReasonTokenReuse         = "token_reuse_detected"
)

const refreshFailureMessage = "Invalid or expired refresh token"

// Sentinel errors. Compare with [errors.Is].
//
// The three refresh token errors carry the same client message so a caller
// cannot tell a forged token from an expired or replayed one.
var (
	ErrInvalidCredentials  = apperr.Unauthorized("Invalid credentials").WithReason(ReasonInvalidCredentials)
	ErrInvalidToken        = apperr.Unauthorized(refreshFailureMessage).WithReason(ReasonTokenInvalid)
	ErrTokenExpired        = apperr.Unauthorized(refreshFailureMessage).WithReason(ReasonTokenExpired)
	ErrTokenReuseDetected  = apperr.Unauthorized(refreshFailureMessage).WithReason(ReasonTokenReuse)
	ErrAuthRequired        = apperr.Unauthorized("Authentication required")
	ErrRefreshTokenMissing = apperr.Unauthorized("Refresh token required")
	ErrEmailTaken          = apperr.Conflict("Email already registered")
)
