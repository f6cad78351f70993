// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically deletes expired refresh token records.
type Janitor struct {
	store    *RefreshStore
	interval time.Duration
	logger   *slog.Logger
}

// NewJanitor creates a janitor that sweeps every interval.
func NewJanitor(store *RefreshStore, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{store: store, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled. It is meant to run in its own goroutine.
func (janitor *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(janitor.interval)
	defer ticker.Stop()

	janitor.logger.Info("refresh_token_janitor_started", slog.Duration("interval", janitor.interval))

	for {
		select {
		case <-ticker.C:
			_, _ = janitor.RunOnce(ctx)
		case <-ctx.Done():
			janitor.logger.Info("refresh_token_janitor_stopped")
			return
		}
	}
}

// RunOnce performs a single sweep and logs its outcome.
func (janitor *Janitor) RunOnce(ctx context.Context) (int64, error) {
	count, err := janitor.store.PurgeExpired(ctx)
	if err != nil {
		janitor.logger.ErrorContext(ctx, "refresh_token_purge_failed", slog.Any("error", err))
		return 0, err
	}

	janitor.logger.InfoContext(ctx, "refresh_token_purge_completed", slog.Int64("purged", count))
	return count, nil
}
