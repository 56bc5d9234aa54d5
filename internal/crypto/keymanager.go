package crypto

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/sticky-canvas/internal/db"
)

// ErrUserKeyNotFound is returned when a user's key entry does not exist
var ErrUserKeyNotFound = errors.New("user key not found")

// KeyManager handles envelope encryption for canvas database keys. Unwrapped
// DEKs are cached in memory for the life of the process.
type KeyManager struct {
	masterKey []byte
	accounts  *db.AccountsDB
	now       func() time.Time

	mu    sync.Mutex
	cache map[string][]byte
}

// NewKeyManager creates a KeyManager over the accounts database.
// masterKey must be high-entropy, at least 32 bytes.
func NewKeyManager(masterKey []byte, accounts *db.AccountsDB) *KeyManager {
	return &KeyManager{
		masterKey: masterKey,
		accounts:  accounts,
		now:       time.Now,
		cache:     make(map[string][]byte),
	}
}

// GetOrCreateUserDEK returns the user's DEK, generating and storing a new
// wrapped one on first use.
func (km *KeyManager) GetOrCreateUserDEK(ctx context.Context, userID string) ([]byte, error) {
	if dek, ok := km.cached(userID); ok {
		return dek, nil
	}

	dek, err := km.GetUserDEK(ctx, userID)
	if err == nil {
		return dek, nil
	}
	if !errors.Is(err, ErrUserKeyNotFound) {
		return nil, err
	}

	dek, err = GenerateDEK()
	if err != nil {
		return nil, err
	}
	const kekVersion = 1
	wrapped, err := WrapDEK(DeriveKEK(km.masterKey, userID, kekVersion), dek, userID)
	if err != nil {
		return nil, err
	}
	err = km.accounts.CreateUserKey(ctx, db.UserKey{
		UserID:       userID,
		KekVersion:   kekVersion,
		EncryptedDek: wrapped,
		CreatedAt:    km.now().Unix(),
	})
	if errors.Is(err, db.ErrKeyExists) {
		// Lost a race with another request for the same user.
		return km.GetUserDEK(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store user key: %w", err)
	}

	km.store(userID, dek)
	return dek, nil
}

// GetUserDEK returns the DEK of an existing user, or ErrUserKeyNotFound.
func (km *KeyManager) GetUserDEK(ctx context.Context, userID string) ([]byte, error) {
	if dek, ok := km.cached(userID); ok {
		return dek, nil
	}
	k, err := km.accounts.GetUserKey(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user key: %w", err)
	}
	dek, err := UnwrapDEK(DeriveKEK(km.masterKey, userID, int(k.KekVersion)), k.EncryptedDek, userID)
	if err != nil {
		return nil, err
	}
	km.store(userID, dek)
	return dek, nil
}

// RotateUserKEK rewraps the user's DEK under KEK version+1. The DEK itself,
// and therefore the canvas database, is unchanged.
func (km *KeyManager) RotateUserKEK(ctx context.Context, userID string) error {
	k, err := km.accounts.GetUserKey(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get user key: %w", err)
	}

	dek, err := UnwrapDEK(DeriveKEK(km.masterKey, userID, int(k.KekVersion)), k.EncryptedDek, userID)
	if err != nil {
		return err
	}
	next := k.KekVersion + 1
	wrapped, err := WrapDEK(DeriveKEK(km.masterKey, userID, int(next)), dek, userID)
	if err != nil {
		return err
	}
	return km.accounts.UpdateUserKey(ctx, db.UserKey{
		UserID:       userID,
		KekVersion:   next,
		EncryptedDek: wrapped,
		RotatedAt:    sql.NullInt64{Int64: km.now().Unix(), Valid: true},
	})
}

func (km *KeyManager) cached(userID string) ([]byte, bool) {
	km.mu.Lock()
	defer km.mu.Unlock()
	dek, ok := km.cache[userID]
	return dek, ok
}

func (km *KeyManager) store(userID string, dek []byte) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.cache[userID] = dek
}
