// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
	"github.com/taibuivan/authsvc/internal/platform/validate"
	"github.com/taibuivan/authsvc/pkg/handle"
	"github.com/taibuivan/authsvc/pkg/uuid"
)

// # Contracts & Types

// CredentialHasher hashes and verifies passwords. [*sec.PasswordHasher] implements it.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(storedHash, candidate string) bool
}

// SessionManager implements the login, rotation and revocation use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to credential checks,
// rotation or revocation must be reviewed by the security team.
type SessionManager struct {
	users   UserRepository
	refresh *RefreshStore
	issuer  *Issuer
	hasher  CredentialHasher
	logger  *slog.Logger

	// dummyHash is verified against when the identifier is unknown, so both
	// login failure paths spend the same hashing work.
	dummyHash string
}

// NewSessionManager wires the use cases. It fails if the hasher cannot
// produce the dummy hash used for unknown identifiers.
func NewSessionManager(
	users UserRepository,
	refresh *RefreshStore,
	issuer *Issuer,
	hasher CredentialHasher,
	logger *slog.Logger,
) (*SessionManager, error) {
	dummyHash, err := hasher.Hash("authsvc-unknown-identifier")
	if err != nil {
		return nil, fmt.Errorf("auth: failed to prepare dummy hash: %w", err)
	}

	return &SessionManager{
		users:     users,
		refresh:   refresh,
		issuer:    issuer,
		hasher:    hasher,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// # Login Flow

/*
Login verifies a password for an email or username and issues a token pair.

Unknown identifiers and wrong passwords both return ErrInvalidCredentials.
*/
func (manager *SessionManager) Login(ctx context.Context, identifier, password string) (*TokenPair, *User, error) {
	identifier = normalizeIdentifier(identifier)

	validator := &validate.Validator{}
	validator.MinLen(FieldIdentifier, identifier, minIdentifierLen).
		Required(FieldPassword, password).
		MaxLen(FieldPassword, password, maxPasswordLen)
	if err := validator.Err(); err != nil {
		return nil, nil, err
	}

	user, err := manager.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !dberr.IsNotFound(err) {
			return nil, nil, apperr.Internal(fmt.Errorf("auth_login_lookup_failed: %w", err))
		}
		manager.hasher.Verify(manager.dummyHash, password)
		manager.logger.WarnContext(ctx, "login_failed", slog.String("reason", "unknown_identifier"))
		return nil, nil, ErrInvalidCredentials
	}

	if !manager.hasher.Verify(user.PasswordHash, password) {
		manager.logger.WarnContext(ctx, "login_failed",
			slog.String("reason", "password_mismatch"),
			slog.String("user_id", user.ID),
		)
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := manager.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	manager.logger.InfoContext(ctx, "login_succeeded", slog.String("user_id", user.ID))
	return pair, user, nil
}

// issuePair signs an access token and persists a brand-new refresh token.
func (manager *SessionManager) issuePair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, accessExpiresAt, err := manager.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	refreshToken, _, err := manager.issuer.IssueRefreshToken()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	record, err := manager.refresh.Save(ctx, user.ID, refreshToken, manager.issuer.RefreshTTL())
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshTokenExpiresAt: record.ExpiresAt,
	}, nil
}

// # Rotation Flow

/*
Rotate exchanges a refresh token for a new pair. The presented token is
retired in the same unit of work that stores its replacement.

Returns:
  - ErrInvalidToken, ErrTokenExpired, ErrTokenReuseDetected from verification
  - ErrInvalidToken if the owning user no longer exists (all their tokens are revoked)
  - ErrTokenReuseDetected if a concurrent request retired the token first
*/
func (manager *SessionManager) Rotate(ctx context.Context, oldRefreshToken string) (*TokenPair, *User, error) {
	record, err := manager.refresh.Verify(ctx, oldRefreshToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := manager.users.FindByID(ctx, record.UserID)
	if err != nil {
		if !dberr.IsNotFound(err) {
			return nil, nil, apperr.Internal(fmt.Errorf("auth_rotate_user_lookup_failed: %w", err))
		}
		if _, revokeErr := manager.refresh.RevokeAll(ctx, record.UserID); revokeErr != nil {
			return nil, nil, revokeErr
		}
		manager.logger.WarnContext(ctx, "refresh_token_orphaned", slog.String("user_id", record.UserID))
		return nil, nil, ErrInvalidToken
	}

	accessToken, accessExpiresAt, err := manager.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	refreshToken, _, err := manager.issuer.IssueRefreshToken()
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	next, err := manager.refresh.Exchange(ctx, record, refreshToken, manager.issuer.RefreshTTL())
	if err != nil {
		return nil, nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshTokenExpiresAt: next.ExpiresAt,
	}, user, nil
}

// # Revocation Flow

// Logout revokes a single refresh token. It never fails from the caller's
// point of view; storage errors are logged.
func (manager *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	if err := manager.refresh.Revoke(ctx, refreshToken); err != nil {
		manager.logger.ErrorContext(ctx, "logout_revoke_failed", slog.Any("error", err))
	}
	return nil
}

// LogoutAll revokes every refresh token of userID and returns how many were live.
func (manager *SessionManager) LogoutAll(ctx context.Context, userID string) (int64, error) {
	count, err := manager.refresh.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	manager.logger.InfoContext(ctx, "logout_all_succeeded",
		slog.String("user_id", userID),
		slog.Int64("revoked", count),
	)
	return count, nil
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	Email                string
	Name                 string
	Password             string
	PasswordConfirmation string
}

/*
Register validates, hashes, and persists a brand new account.

The username is derived from Name with a random numeric suffix until unique.

Returns:
  - *User: Created entity
  - error: VALIDATION_ERROR, ErrEmailTaken, or storage errors
*/
func (manager *SessionManager) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := normalizeIdentifier(input.Email)
	name := strings.TrimSpace(input.Name)

	validator := &validate.Validator{}
	validator.Required(FieldEmail, email).
		Email(FieldEmail, email).
		MaxLen(FieldEmail, email, maxEmailLen).
		MinLen(FieldName, name, minNameLen).
		MaxLen(FieldName, name, maxNameLen).
		Custom(FieldName, strings.ContainsFunc(name, unicode.IsControl), "Must not contain control characters").
		MinLen(FieldPassword, input.Password, minPasswordLen).
		MaxLen(FieldPassword, input.Password, maxPasswordLen).
		StrongPassword(FieldPassword, input.Password).
		Required(FieldPasswordConfirmation, input.PasswordConfirmation).
		Equal(FieldPasswordConfirmation, input.PasswordConfirmation, input.Password, "Passwords do not match")
	if err := validator.Err(); err != nil {
		return nil, err
	}

	taken, err := manager.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_register_email_check_failed: %w", err))
	}
	if taken {
		return nil, ErrEmailTaken
	}

	username, err := manager.uniqueUsername(ctx, name)
	if err != nil {
		return nil, err
	}

	passwordHash, err := manager.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_register_hash_failed: %w", err))
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		Name:         name,
		Avatar:       avatarURL(name),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := manager.users.Create(ctx, user); err != nil {
		// A concurrent registration won the unique index.
		if dberr.IsUniqueViolation(err) || apperr.IsCode(err, "CONFLICT") {
			if taken, _ := manager.users.ExistsByEmail(ctx, email); taken {
				return nil, ErrEmailTaken
			}
			return nil, apperr.Conflict("Username already taken")
		}
		return nil, apperr.Internal(fmt.Errorf("auth_register_create_failed: %w", err))
	}

	manager.logger.InfoContext(ctx, "user_registered", slog.String("user_id", user.ID))
	return user, nil
}

// uniqueUsername tries random suffixes, then falls back to a millisecond timestamp.
func (manager *SessionManager) uniqueUsername(ctx context.Context, name string) (string, error) {
	base := handle.Base(name)

	for range maxUsernameAttempts {
		candidate, err := handle.WithSuffix(base)
		if err != nil {
			return "", apperr.Internal(fmt.Errorf("auth_username_suffix_failed: %w", err))
		}

		exists, err := manager.users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", apperr.Internal(fmt.Errorf("auth_username_check_failed: %w", err))
		}
		if !exists {
			return candidate, nil
		}
	}

	return base + strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}

// # Profile

// Me returns the current account of userID.
func (manager *SessionManager) Me(ctx context.Context, userID string) (*User, error) {
	user, err := manager.users.FindByID(ctx, userID)
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, apperr.NotFound("User")
		}
		return nil, apperr.Internal(fmt.Errorf("auth_me_lookup_failed: %w", err))
	}
	return user, nil
}

// isRefreshFailure reports whether err is one of the refresh token sentinels.
func isRefreshFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenReuseDetected)
}
