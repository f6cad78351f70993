// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema names the tables and columns used by the PostgreSQL
// repositories, so queries are assembled from one source of truth.
package schema

// UsersTable represents the 'users' table
type UsersTable struct {
	Table        string
	ID           string
	Email        string
	Username     string
	Name         string
	Avatar       string
	PasswordHash string
	CreatedAt    string
	UpdatedAt    string
}

// Users is the schema definition for users
var Users = UsersTable{
	Table:        "users",
	ID:           "id",
	Email:        "email",
	Username:     "username",
	Name:         "name",
	Avatar:       "avatar",
	PasswordHash: "password_hash",
	CreatedAt:    "created_at",
	UpdatedAt:    "updated_at",
}

// Columns returns all standard column names in scan order
func (t UsersTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.Username, t.Name, t.Avatar, t.PasswordHash, t.CreatedAt, t.UpdatedAt,
	}
}
