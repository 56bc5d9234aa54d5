package db

// Two kinds of SQLite database back the server:
// 1. accounts.db - shared and unencrypted: wrapped per-user keys and profiles
// 2. canvases/{app}/{user}.db - one per user and app, encrypted with SQLCipher

// AccountsDBSchema is applied to the shared accounts database on open.
const AccountsDBSchema = `
-- Wrapped DEKs for per-user canvas databases
CREATE TABLE IF NOT EXISTS user_keys (
    user_id TEXT PRIMARY KEY,
    kek_version INTEGER NOT NULL DEFAULT 1,
    encrypted_dek BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    rotated_at INTEGER
);

-- Display-name overrides; identity otherwise comes from the token
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// CanvasDBSchema is applied to every per-user canvas database on open.
// Timestamps are unix microseconds.
const CanvasDBSchema = `
CREATE TABLE IF NOT EXISTS textboxes (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL DEFAULT '',
    x REAL NOT NULL DEFAULT 0,
    y REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_textboxes_last_modified ON textboxes(last_modified DESC);
`
