// Package testdb opens throwaway in-memory databases for tests.
package testdb

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/kuitang/sticky-canvas/internal/db"
)

// TestDEK is a fixed 32-byte key for encrypted in-memory canvases.
var TestDEK = []byte("0123456789abcdef0123456789abcdef")

var memSeq atomic.Int64

// NewCanvasDBInMemory creates an in-memory encrypted canvas database. Each
// call gets its own database, even for the same key.
func NewCanvasDBInMemory(key db.CanvasKey) (*db.CanvasDB, error) {
	if key.AppID == "" {
		key.AppID = "test-app"
	}
	if key.UserID == "" {
		key.UserID = "test-user"
	}

	name := fmt.Sprintf("canvas-%d", memSeq.Add(1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
		name, hex.EncodeToString(TestDEK))

	sqlDB, err := sqlx.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory canvas database: %w", err)
	}
	// A shared-cache memory database disappears with its last connection.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(0)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory canvas database: %w", err)
	}
	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}
	if _, err := sqlDB.Exec(db.CanvasDBSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize in-memory canvas schema: %w", err)
	}
	return db.NewCanvasDBFromSQL(key, sqlDB), nil
}

// NewAccountsDBInMemory creates an in-memory unencrypted accounts database.
func NewAccountsDBInMemory() (*db.AccountsDB, error) {
	sqlDB, err := sqlx.Open(db.SQLiteDriverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory accounts database: %w", err)
	}
	// Every :memory: connection is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping in-memory accounts database: %w", err)
	}
	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}
	if _, err := sqlDB.Exec(db.AccountsDBSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize in-memory accounts schema: %w", err)
	}
	return db.NewAccountsDBFromSQL(sqlDB), nil
}

func applyFastSQLitePragmas(sqlDB *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA secure_delete=OFF",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
