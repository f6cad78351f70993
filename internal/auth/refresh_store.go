// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/authsvc/internal/platform/apperr"
	"github.com/taibuivan/authsvc/internal/platform/dberr"
	"github.com/taibuivan/authsvc/internal/platform/sec"
	"github.com/taibuivan/authsvc/pkg/uuid"
)

// RefreshStore owns the refresh token lifecycle on top of a [RefreshTokenRepository].
//
// # Security
//
// Presenting a revoked token is treated as theft: every token of that user is
// revoked before the error is returned to the caller.
type RefreshStore struct {
	repository RefreshTokenRepository
	now        func() time.Time
	logger     *slog.Logger
}

// NewRefreshStore builds a store. A nil now defaults to [time.Now].
func NewRefreshStore(repository RefreshTokenRepository, now func() time.Time, logger *slog.Logger) *RefreshStore {
	if now == nil {
		now = time.Now
	}
	return &RefreshStore{repository: repository, now: now, logger: logger}
}

// Save hashes plaintext and persists a fresh, non-revoked record for userID.
func (store *RefreshStore) Save(ctx context.Context, userID, plaintext string, ttl time.Duration) (*RefreshToken, error) {
	record := store.newRecord(userID, plaintext, ttl)

	if err := store.repository.Create(ctx, record); err != nil {
		return nil, apperr.Internal(fmt.Errorf("refresh_store_save_failed: %w", err))
	}

	return record, nil
}

/*
Verify resolves a presented plaintext to its live record.

Returns:
  - ErrInvalidToken: no record matches
  - ErrTokenReuseDetected: the record is revoked; all of the user's tokens are revoked first
  - ErrTokenExpired: the record expired (a record expiring exactly now is still valid)
*/
func (store *RefreshStore) Verify(ctx context.Context, plaintext string) (*RefreshToken, error) {
	if plaintext == "" {
		return nil, ErrInvalidToken
	}

	record, err := store.repository.FindByHash(ctx, sec.HashToken(plaintext))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, apperr.Internal(fmt.Errorf("refresh_store_lookup_failed: %w", err))
	}

	if record.Revoked {
		return nil, store.reuseDetected(ctx, record.UserID)
	}

	if store.now().After(record.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	return record, nil
}

// Revoke marks the token revoked. Unknown and already revoked tokens are a no-op.
func (store *RefreshStore) Revoke(ctx context.Context, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	if err := store.repository.RevokeByHash(ctx, sec.HashToken(plaintext)); err != nil {
		return apperr.Internal(fmt.Errorf("refresh_store_revoke_failed: %w", err))
	}
	return nil
}

// RevokeAll revokes every non-revoked token of userID and returns the count.
func (store *RefreshStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	count, err := store.repository.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("refresh_store_revoke_all_failed: %w", err))
	}
	return count, nil
}

// PurgeExpired deletes records that expired before now and returns the count.
func (store *RefreshStore) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := store.repository.DeleteExpired(ctx, store.now())
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("refresh_store_purge_failed: %w", err))
	}
	return count, nil
}

/*
Exchange retires old and persists newPlaintext in one unit of work.

If another request already retired old (a concurrent rotation, or a replay
that slipped past [RefreshStore.Verify]), nothing is written, every token of
the user is revoked, and ErrTokenReuseDetected is returned.
*/
func (store *RefreshStore) Exchange(ctx context.Context, old *RefreshToken, newPlaintext string, ttl time.Duration) (*RefreshToken, error) {
	next := store.newRecord(old.UserID, newPlaintext, ttl)

	rotated, err := store.repository.Rotate(ctx, old.TokenHash, next)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("refresh_store_exchange_failed: %w", err))
	}
	if !rotated {
		return nil, store.reuseDetected(ctx, old.UserID)
	}

	return next, nil
}

// reuseDetected revokes all tokens of userID synchronously. If that fails the
// storage error is returned instead, so the caller never reports a revocation
// that did not happen.
func (store *RefreshStore) reuseDetected(ctx context.Context, userID string) error {
	count, err := store.repository.RevokeAllForUser(ctx, userID)
	if err != nil {
		store.logger.ErrorContext(ctx, "refresh_token_reuse_revoke_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return apperr.Internal(fmt.Errorf("refresh_store_reuse_revoke_failed: %w", err))
	}

	store.logger.WarnContext(ctx, "refresh_token_reuse_detected",
		slog.String("user_id", userID),
		slog.Int64("revoked", count),
	)
	return ErrTokenReuseDetected
}

// newRecord truncates timestamps to microseconds, the finest precision every
// backend round-trips.
func (store *RefreshStore) newRecord(userID, plaintext string, ttl time.Duration) *RefreshToken {
	now := store.now().Truncate(time.Microsecond)
	return &RefreshToken{
		ID:        uuid.New(),
		TokenHash: sec.HashToken(plaintext),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		Revoked:   false,
		CreatedAt: now,
	}
}
