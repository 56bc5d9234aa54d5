// Package crypto provides envelope encryption for per-user canvas database keys.
// It implements a two-tier key hierarchy:
// - KEK (Key Encryption Key): derived from the master key with HKDF-SHA256
// - DEK (Data Encryption Key): random 32-byte SQLCipher key, wrapped with the KEK using AES-256-GCM
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DEKSize is the size of a Data Encryption Key in bytes (256 bits)
	DEKSize = 32

	// KEKSize is the size of a Key Encryption Key in bytes (256 bits)
	KEKSize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes (96 bits)
	NonceSize = 12

	tagSize = 16
)

// DeriveKEK derives a Key Encryption Key from a master key using HKDF-SHA256.
// The info parameter combines user ID and version for domain separation:
// info = "canvas-user:" + userID + ":v" + version
//
// Parameters:
//   - masterKey: The root secret (high-entropy, at least 32 bytes)
//   - userID: The identity-provider subject of the user
//   - version: The KEK version (for key rotation)
//
// Returns:
//   - []byte: A 32-byte KEK derived deterministically from the inputs
func DeriveKEK(masterKey []byte, userID string, version int) []byte {
	info := fmt.Sprintf("canvas-user:%s:v%d", userID, version)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	kek := make([]byte, KEKSize)
	if _, err := io.ReadFull(r, kek); err != nil {
		// HKDF-SHA256 can produce 255*32 bytes; 32 never fails.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return kek
}

// GenerateDEK returns a new random Data Encryption Key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}
	return dek, nil
}

// WrapDEK encrypts a DEK with the KEK. The user id is bound as additional
// authenticated data, so a wrapped key copied to another user's row fails to
// unwrap.
// Output format: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
func WrapDEK(kek, dek []byte, userID string) ([]byte, error) {
	if len(dek) != DEKSize {
		return nil, fmt.Errorf("DEK must be %d bytes, got %d", DEKSize, len(dek))
	}
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+DEKSize+tagSize)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(out, out[:NonceSize], dek, aad(userID)), nil
}

// UnwrapDEK reverses WrapDEK.
func UnwrapDEK(kek, wrapped []byte, userID string) ([]byte, error) {
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	if len(wrapped) < NonceSize+tagSize {
		return nil, fmt.Errorf("wrapped DEK too short: got %d bytes, need at least %d", len(wrapped), NonceSize+tagSize)
	}
	dek, err := gcm.Open(nil, wrapped[:NonceSize], wrapped[NonceSize:], aad(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap DEK: %w", err)
	}
	if len(dek) != DEKSize {
		return nil, fmt.Errorf("unwrapped DEK has %d bytes, want %d", len(dek), DEKSize)
	}
	return dek, nil
}

func newGCM(kek []byte) (cipher.AEAD, error) {
	if len(kek) != KEKSize {
		return nil, fmt.Errorf("KEK must be %d bytes, got %d", KEKSize, len(kek))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func aad(userID string) []byte {
	return []byte("canvas-dek:" + userID)
}
