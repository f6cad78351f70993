// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taibuivan/authsvc/internal/platform/database/schema"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
	"github.com/taibuivan/authsvc/internal/platform/postgres"
	"github.com/taibuivan/authsvc/pkg/uuid"
)

// # Query Templates

var (
	userColumns  = strings.Join(schema.Users.Columns(), ", ")
	tokenColumns = strings.Join(schema.RefreshTokens.Columns(), ", ")

	selectUserByIdentifierQuery = fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 OR %s = $1 LIMIT 1",
		userColumns, schema.Users.Table, schema.Users.Email, schema.Users.Username,
	)
	selectUserByIDQuery = fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		userColumns, schema.Users.Table, schema.Users.ID,
	)
	insertUserQuery = fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		schema.Users.Table, userColumns,
	)
	existsUserByEmailQuery = fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)",
		schema.Users.Table, schema.Users.Email,
	)
	existsUserByUsernameQuery = fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)",
		schema.Users.Table, schema.Users.Username,
	)

	insertTokenQuery = fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)",
		schema.RefreshTokens.Table, tokenColumns,
	)
	selectTokenByHashQuery = fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		tokenColumns, schema.RefreshTokens.Table, schema.RefreshTokens.TokenHash,
	)
	revokeTokenQuery = fmt.Sprintf(
		"UPDATE %s SET %s = TRUE WHERE %s = $1 AND %s = FALSE",
		schema.RefreshTokens.Table, schema.RefreshTokens.Revoked,
		schema.RefreshTokens.TokenHash, schema.RefreshTokens.Revoked,
	)
	revokeAllTokensQuery = fmt.Sprintf(
		"UPDATE %s SET %s = TRUE WHERE %s = $1 AND %s = FALSE",
		schema.RefreshTokens.Table, schema.RefreshTokens.Revoked,
		schema.RefreshTokens.UserID, schema.RefreshTokens.Revoked,
	)
	deleteExpiredTokensQuery = fmt.Sprintf(
		"DELETE FROM %s WHERE %s < $1",
		schema.RefreshTokens.Table, schema.RefreshTokens.ExpiresAt,
	)
)

// errRotationLost aborts the rotation transaction when the old token was
// already revoked or removed.
var errRotationLost = errors.New("refresh token no longer active")

// # User Repository

// PostgresUserRepository implements [UserRepository] on PostgreSQL.
type PostgresUserRepository struct {
	db postgres.DBTX
}

// NewPostgresUserRepository creates a repository over db.
func NewPostgresUserRepository(db postgres.DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

/*
FindByIdentifier resolves an account by email or username.

Parameters:
  - ctx: context.Context
  - identifier: string (already normalized)

Returns:
  - *User: Hydrated account entity
  - error: dberr.ErrNotFound or execution errors
*/
func (repository *PostgresUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	row := repository.db.QueryRowContext(ctx, selectUserByIdentifierQuery, identifier)

	user, err := scanUser(row)
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_identifier_failed: %w", err)
	}

	return user, nil
}

// FindByID resolves an account by primary key. Malformed IDs are reported as
// not found rather than sent to the database.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if !uuid.IsValid(id) {
		return nil, dberr.ErrNotFound
	}

	user, err := scanUser(repository.db.QueryRowContext(ctx, selectUserByIDQuery, id))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}

	return user, nil
}

/*
Create persists a new account.

Description: Initializes timestamps when the caller left them empty. A
duplicate email or username surfaces as a unique violation.

Returns:
  - error: Constraint violations or connectivity errors
*/
func (repository *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := repository.db.ExecContext(ctx, insertUserQuery,
		user.ID,
		user.Email,
		user.Username,
		user.Name,
		user.Avatar,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

// ExistsByEmail implements [UserRepository].
func (repository *PostgresUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := repository.db.QueryRowContext(ctx, existsUserByEmailQuery, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_user_repo_exists_by_email_failed: %w", err)
	}
	return exists, nil
}

// ExistsByUsername implements [UserRepository].
func (repository *PostgresUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := repository.db.QueryRowContext(ctx, existsUserByUsernameQuery, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_user_repo_exists_by_username_failed: %w", err)
	}
	return exists, nil
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.Name,
		&user.Avatar,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// # Refresh Token Repository

// PostgresRefreshTokenRepository implements [RefreshTokenRepository] on PostgreSQL.
//
// Rotate needs a transaction, so the repository holds the *sql.DB itself
// rather than a [postgres.DBTX].
type PostgresRefreshTokenRepository struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepository creates a repository over db.
func NewPostgresRefreshTokenRepository(db *sql.DB) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db}
}

// Create implements [RefreshTokenRepository].
func (repository *PostgresRefreshTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if err := insertToken(ctx, repository.db, token); err != nil {
		return fmt.Errorf("postgres_refresh_repo_create_failed: %w", err)
	}
	return nil
}

// FindByHash implements [RefreshTokenRepository].
func (repository *PostgresRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	token := &RefreshToken{}
	err := repository.db.QueryRowContext(ctx, selectTokenByHashQuery, tokenHash).Scan(
		&token.ID,
		&token.TokenHash,
		&token.UserID,
		&token.ExpiresAt,
		&token.Revoked,
		&token.CreatedAt,
	)
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_refresh_repo_find_failed: %w", err)
	}

	return token, nil
}

// RevokeByHash implements [RefreshTokenRepository].
func (repository *PostgresRefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) error {
	if _, err := repository.db.ExecContext(ctx, revokeTokenQuery, tokenHash); err != nil {
		return fmt.Errorf("postgres_refresh_repo_revoke_failed: %w", err)
	}
	return nil
}

// RevokeAllForUser implements [RefreshTokenRepository].
func (repository *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	if !uuid.IsValid(userID) {
		return 0, nil
	}

	result, err := repository.db.ExecContext(ctx, revokeAllTokensQuery, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_revoke_all_failed: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_revoke_all_failed: %w", err)
	}
	return count, nil
}

// DeleteExpired implements [RefreshTokenRepository].
func (repository *PostgresRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := repository.db.ExecContext(ctx, deleteExpiredTokensQuery, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_delete_expired_failed: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_delete_expired_failed: %w", err)
	}
	return count, nil
}

/*
Rotate revokes oldHash and inserts next in one transaction.

Description: The conditional UPDATE is the compare-and-set. Row locking makes
a concurrent rotation of the same token block until this transaction ends,
after which its UPDATE matches zero rows and it reports false.

Returns:
  - bool: false when the old token was already revoked or missing
  - error: Execution errors (the transaction is rolled back)
*/
func (repository *PostgresRefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next *RefreshToken) (bool, error) {
	err := postgres.WithTx(ctx, repository.db, nil, func(ctx context.Context, tx postgres.DBTX) error {
		result, err := tx.ExecContext(ctx, revokeTokenQuery, oldHash)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errRotationLost
		}

		return insertToken(ctx, tx, next)
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errRotationLost):
		return false, nil
	default:
		return false, fmt.Errorf("postgres_refresh_repo_rotate_failed: %w", err)
	}
}

func insertToken(ctx context.Context, db postgres.DBTX, token *RefreshToken) error {
	_, err := db.ExecContext(ctx, insertTokenQuery,
		token.ID,
		token.TokenHash,
		token.UserID,
		token.ExpiresAt,
		token.Revoked,
		token.CreatedAt,
	)
	return err
}
