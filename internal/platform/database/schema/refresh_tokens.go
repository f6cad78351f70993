// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// RefreshTokensTable represents the 'refresh_tokens' table
type RefreshTokensTable struct {
	Table     string
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt string
	Revoked   string
	CreatedAt string
}

// RefreshTokens is the schema definition for refresh_tokens
var RefreshTokens = RefreshTokensTable{
	Table:     "refresh_tokens",
	ID:        "id",
	TokenHash: "token_hash",
	UserID:    "user_id",
	ExpiresAt: "expires_at",
	Revoked:   "revoked",
	CreatedAt: "created_at",
}

// Columns returns all standard column names in scan order
func (t RefreshTokensTable) Columns() []string {
	return []string{
		t.ID, t.TokenHash, t.UserID, t.ExpiresAt, t.Revoked, t.CreatedAt,
	}
}
