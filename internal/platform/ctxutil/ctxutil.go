// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/taibuivan/authsvc/internal/platform/ctxkey"
	"github.com/taibuivan/authsvc/internal/platform/sec"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// WithClientIP returns a new context carrying the resolved client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyClientIP, ip)
}

// GetClientIP returns the resolved client address, or "" if none was stored.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxkey.KeyClientIP).(string)
	return ip
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	return GetLoggerOr(ctx, slog.Default())
}

// GetLoggerOr retrieves the logger from the context, or fallback if none is set.
func GetLoggerOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok || logger == nil {
		return fallback
	}
	return logger
}

// # Identity & Access

// IdentitySlot lets an outer middleware observe claims attached further down
// the chain, where the derived context is not visible to it.
type IdentitySlot struct {
	mu     sync.RWMutex
	claims *sec.AuthClaims
}

// UserID returns the subject of the recorded claims, or "" if none.
func (slot *IdentitySlot) UserID() string {
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	if slot.claims == nil {
		return ""
	}
	return slot.claims.UserID()
}

// WithIdentitySlot attaches an empty [IdentitySlot] to ctx.
func WithIdentitySlot(ctx context.Context) (context.Context, *IdentitySlot) {
	slot := &IdentitySlot{}
	return context.WithValue(ctx, ctxkey.KeyIdentitySlot, slot), slot
}

// WithAuthUser returns a new context with the provided auth claims attached.
// The claims are also recorded in the request's [IdentitySlot], if any.
func WithAuthUser(ctx context.Context, user *sec.AuthClaims) context.Context {
	if slot, ok := ctx.Value(ctxkey.KeyIdentitySlot).(*IdentitySlot); ok {
		slot.mu.Lock()
		slot.claims = user
		slot.mu.Unlock()
	}
	return context.WithValue(ctx, ctxkey.KeyUser, user)
}

// GetAuthUser retrieves the [*sec.AuthClaims] from the [context.Context].
func GetAuthUser(ctx context.Context) *sec.AuthClaims {
	claims, ok := ctx.Value(ctxkey.KeyUser).(*sec.AuthClaims)
	if !ok {
		return nil
	}
	return claims
}
