// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// UserRepository defines the data access contract for user accounts.
//
// Missing rows are reported as an error satisfying [dberr.IsNotFound].
type UserRepository interface {
	// FindByIdentifier returns the account whose email or username equals identifier.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	// FindByID returns the account with the given ID.
	FindByID(ctx context.Context, id string) (*User, error)

	// Create persists a brand-new user account.
	//
	// A duplicate email or username surfaces as [dberr.IsUniqueViolation] or a
	// CONFLICT [apperr.AppError].
	Create(ctx context.Context, user *User) error

	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// RefreshTokenRepository defines the persistence contract behind [RefreshStore].
//
// Implementations store records keyed by TokenHash and never see plaintext.
type RefreshTokenRepository interface {
	// Create inserts a new record. A duplicate hash is an error.
	Create(ctx context.Context, token *RefreshToken) error

	// FindByHash returns the record for tokenHash regardless of its revoked or
	// expiry state. Missing records satisfy [dberr.IsNotFound].
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// RevokeByHash marks the record revoked. Missing or already revoked
	// records are not an error.
	RevokeByHash(ctx context.Context, tokenHash string) error

	// RevokeAllForUser revokes every non-revoked record of userID and returns
	// how many changed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired physically removes records with ExpiresAt strictly before
	// the given instant and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// Rotate atomically revokes oldHash if and only if it is still
	// non-revoked, and inserts next in the same unit of work. It returns false
	// (and changes nothing) when the old record was already revoked or gone.
	Rotate(ctx context.Context, oldHash string, next *RefreshToken) (bool, error)
}
