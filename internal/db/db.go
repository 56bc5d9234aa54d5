package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

const (
	// DefaultDataDirectory is the default root directory for all database files
	DefaultDataDirectory = "./data"

	// AccountsDBName is the filename of the shared accounts database
	AccountsDBName = "accounts.db"

	// MaxOpenConns is the maximum number of open connections for the accounts database.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections for the accounts database
	MaxIdleConns = 2

	// CanvasDBMaxOpenConns is the maximum open connections per canvas database.
	CanvasDBMaxOpenConns = 2

	// CanvasDBMaxIdleConns is the maximum idle connections per canvas database
	CanvasDBMaxIdleConns = 1
)

var (
	// DataDirectory is the actual data directory being used (can be overridden for tests)
	DataDirectory = DefaultDataDirectory
)

var (
	accountsDB     *sqlx.DB
	accountsDBOnce sync.Once
	accountsDBErr  error

	// canvasDBs caches per-user canvas connections keyed by CanvasKey.String()
	canvasDBs   = make(map[string]*sqlx.DB)
	canvasDBsMu sync.RWMutex
)

// AccountsDB is the shared, unencrypted database of user keys and profiles.
type AccountsDB struct {
	db *sqlx.DB
}

// NewAccountsDBFromSQL wraps an existing connection.
func NewAccountsDBFromSQL(sqlDB *sqlx.DB) *AccountsDB {
	return &AccountsDB{db: sqlDB}
}

// DB returns the underlying connection.
func (a *AccountsDB) DB() *sqlx.DB {
	return a.db
}

// Close closes the connection. Only needed for in-memory databases that are
// not cached by the package.
func (a *AccountsDB) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// CanvasKey names one user's canvas within one application.
type CanvasKey struct {
	AppID  string
	UserID string
}

func (k CanvasKey) String() string {
	return k.AppID + "/" + k.UserID
}

// Validate rejects keys that cannot map to a database file.
func (k CanvasKey) Validate() error {
	if k.UserID == "" {
		return fmt.Errorf("userID cannot be empty")
	}
	if k.AppID == "" || strings.ContainsAny(k.AppID, `/\`) || k.AppID == "." || k.AppID == ".." {
		return fmt.Errorf("invalid appID %q", k.AppID)
	}
	return nil
}

// path places the file under DataDirectory. User ids come from identity
// tokens and are hashed so they never reach the filesystem verbatim.
func (k CanvasKey) path() string {
	sum := sha256.Sum256([]byte(k.UserID))
	return filepath.Join(DataDirectory, "canvases", k.AppID, hex.EncodeToString(sum[:16])+".db")
}

// CanvasDB is one user's encrypted canvas database.
type CanvasDB struct {
	db  *sqlx.DB
	key CanvasKey
}

// NewCanvasDBFromSQL wraps an existing connection.
func NewCanvasDBFromSQL(key CanvasKey, sqlDB *sqlx.DB) *CanvasDB {
	return &CanvasDB{db: sqlDB, key: key}
}

// DB returns the underlying connection.
func (c *CanvasDB) DB() *sqlx.DB {
	return c.db
}

// Key returns which canvas this database holds.
func (c *CanvasDB) Key() CanvasKey {
	return c.key
}

// Close closes the connection. Only needed for in-memory databases that are
// not cached by the package.
func (c *CanvasDB) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// OpenAccountsDB opens the shared accounts database. The connection is
// cached as a singleton and reused across calls.
func OpenAccountsDB() (*AccountsDB, error) {
	accountsDBOnce.Do(func() {
		if err := os.MkdirAll(DataDirectory, 0750); err != nil {
			accountsDBErr = fmt.Errorf("failed to create data directory: %w", err)
			return
		}

		dsn := appendSQLiteParams(filepath.Join(DataDirectory, AccountsDBName), sqliteCommonParams())
		db, err := sqlx.Open(SQLiteDriverName, dsn)
		if err != nil {
			accountsDBErr = fmt.Errorf("failed to open accounts database: %w", err)
			return
		}
		db.SetMaxOpenConns(MaxOpenConns)
		db.SetMaxIdleConns(MaxIdleConns)

		if err := db.Ping(); err != nil {
			db.Close()
			accountsDBErr = fmt.Errorf("failed to ping accounts database: %w", err)
			return
		}
		if _, err := db.Exec(AccountsDBSchema); err != nil {
			db.Close()
			accountsDBErr = fmt.Errorf("failed to initialize accounts schema: %w", err)
			return
		}
		accountsDB = db
	})

	if accountsDBErr != nil {
		return nil, accountsDBErr
	}
	return NewAccountsDBFromSQL(accountsDB), nil
}

// OpenCanvasDBWithDEK opens a per-user encrypted canvas database with the
// user's 32-byte DEK. Connections are cached per key.
func OpenCanvasDBWithDEK(key CanvasKey, dek []byte) (*CanvasDB, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(dek) != 32 {
		return nil, fmt.Errorf("DEK must be exactly 32 bytes, got %d", len(dek))
	}

	canvasDBsMu.RLock()
	if db, ok := canvasDBs[key.String()]; ok {
		canvasDBsMu.RUnlock()
		return NewCanvasDBFromSQL(key, db), nil
	}
	canvasDBsMu.RUnlock()

	canvasDBsMu.Lock()
	defer canvasDBsMu.Unlock()

	// Double-check after acquiring the write lock.
	if db, ok := canvasDBs[key.String()]; ok {
		return NewCanvasDBFromSQL(key, db), nil
	}

	dbPath := key.path()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create canvas directory: %w", err)
	}

	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(dek))
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	db, err := sqlx.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open canvas database for %s: %w", key, err)
	}
	db.SetMaxOpenConns(CanvasDBMaxOpenConns)
	db.SetMaxIdleConns(CanvasDBMaxIdleConns)

	// A wrong key only surfaces on the first real query.
	var sqliteVersion string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify canvas database for %s: %w", key, err)
	}
	if _, err := db.Exec(CanvasDBSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize canvas schema for %s: %w", key, err)
	}

	canvasDBs[key.String()] = db
	return NewCanvasDBFromSQL(key, db), nil
}

// CloseAll closes all open database connections. Called during graceful
// shutdown.
func CloseAll() error {
	var firstErr error

	if accountsDB != nil {
		if err := accountsDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close accounts database: %w", err)
		}
		accountsDB = nil
	}

	canvasDBsMu.Lock()
	defer canvasDBsMu.Unlock()
	for key, db := range canvasDBs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close canvas database for %s: %w", key, err)
		}
	}
	canvasDBs = make(map[string]*sqlx.DB)

	return firstErr
}

// ResetForTesting closes all connections and resets the singleton state.
// Tests only.
func ResetForTesting() {
	CloseAll()
	accountsDBOnce = sync.Once{}
	accountsDB = nil
	accountsDBErr = nil
}

func sqliteCommonParams() string {
	// WAL + NORMAL gives good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
