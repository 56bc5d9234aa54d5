package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserKey is a wrapped DEK row.
type UserKey struct {
	UserID       string        `db:"user_id"`
	KekVersion   int64         `db:"kek_version"`
	EncryptedDek []byte        `db:"encrypted_dek"`
	CreatedAt    int64         `db:"created_at"`
	RotatedAt    sql.NullInt64 `db:"rotated_at"`
}

// Profile is a display-name override row.
type Profile struct {
	UserID      string `db:"user_id"`
	DisplayName string `db:"display_name"`
	UpdatedAt   int64  `db:"updated_at"`
}

// ErrKeyExists is returned by CreateUserKey when the user already has a key.
var ErrKeyExists = errors.New("user key already exists")

// GetUserKey returns sql.ErrNoRows when the user has no key.
func (a *AccountsDB) GetUserKey(ctx context.Context, userID string) (UserKey, error) {
	var k UserKey
	err := a.db.GetContext(ctx, &k,
		`SELECT user_id, kek_version, encrypted_dek, created_at, rotated_at FROM user_keys WHERE user_id = ?`,
		userID)
	return k, err
}

// CreateUserKey inserts a key. A concurrent insert for the same user loses
// with ErrKeyExists so the caller can re-read the winner.
func (a *AccountsDB) CreateUserKey(ctx context.Context, k UserKey) error {
	res, err := a.db.NamedExecContext(ctx,
		`INSERT INTO user_keys (user_id, kek_version, encrypted_dek, created_at)
		 VALUES (:user_id, :kek_version, :encrypted_dek, :created_at)
		 ON CONFLICT(user_id) DO NOTHING`, k)
	if err != nil {
		return fmt.Errorf("insert user key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrKeyExists
	}
	return nil
}

// UpdateUserKey rewraps a key under a new KEK version.
func (a *AccountsDB) UpdateUserKey(ctx context.Context, k UserKey) error {
	_, err := a.db.NamedExecContext(ctx,
		`UPDATE user_keys SET kek_version = :kek_version, encrypted_dek = :encrypted_dek, rotated_at = :rotated_at
		 WHERE user_id = :user_id`, k)
	if err != nil {
		return fmt.Errorf("update user key: %w", err)
	}
	return nil
}

// GetProfile returns sql.ErrNoRows when the user never set a display name.
func (a *AccountsDB) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := a.db.GetContext(ctx, &p,
		`SELECT user_id, display_name, updated_at FROM profiles WHERE user_id = ?`, userID)
	return p, err
}

// UpsertProfile stores a display-name override.
func (a *AccountsDB) UpsertProfile(ctx context.Context, p Profile) error {
	_, err := a.db.NamedExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, updated_at)
		 VALUES (:user_id, :display_name, :updated_at)
		 ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at`, p)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
