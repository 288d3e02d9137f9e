// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secret encrypts small credentials at rest.
//
// The auth token never touches disk in the clear: values are sealed with
// AES-256-GCM under a key derived via PBKDF2-SHA-256 from random key
// material kept in a 0600 file beside the state directory.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/campuskit/advisor-tui/internal/util"
)

// EncryptedPrefix marks a sealed value (format: ENC:base64(salt|nonce|ciphertext)).
const EncryptedPrefix = "ENC:"

// NonceSize is the AES-GCM nonce size (12 bytes / 96 bits).
const NonceSize = 12

// KeySize is the AES-256 key size (32 bytes).
const KeySize = 32

// SaltSize is the key-derivation salt size (32 bytes).
const SaltSize = 32

// PBKDF2Iterations follows the OWASP 2023 recommendation for
// PBKDF2-SHA-256.
const PBKDF2Iterations = 600000

var (
	// ErrInvalidCiphertext indicates the sealed value's format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates a wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// zeroBytes clears sensitive material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Vault seals and opens short secret strings using key material stored
// in a per-user file.
type Vault struct {
	keyPath string
}

// NewVault creates a vault whose key material lives at keyPath. The key
// file is created lazily on first Seal.
func NewVault(keyPath string) *Vault {
	return &Vault{keyPath: keyPath}
}

// keyMaterial loads or creates the random key material file.
func (v *Vault) keyMaterial(create bool) ([]byte, error) {
	data, err := os.ReadFile(v.keyPath)
	if err == nil {
		if len(data) != KeySize {
			return nil, fmt.Errorf("key file %s is corrupt", v.keyPath)
		}
		return data, nil
	}
	if !os.IsNotExist(err) || !create {
		return nil, err
	}

	material := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.keyPath), 0700); err != nil {
		return nil, err
	}
	if err := util.AtomicWriteFile(v.keyPath, material, 0600); err != nil {
		return nil, fmt.Errorf("failed to store key material: %w", err)
	}
	return material, nil
}

// deriveKey stretches the key material with a per-value salt.
func deriveKey(material, salt []byte) []byte {
	return pbkdf2.Key(material, salt, PBKDF2Iterations, KeySize, sha256.New)
}

// Seal encrypts a plaintext value. Sealing an already-sealed value
// returns it unchanged.
func (v *Vault) Seal(plaintext string) (string, error) {
	if strings.HasPrefix(plaintext, EncryptedPrefix) {
		return plaintext, nil
	}

	material, err := v.keyMaterial(true)
	if err != nil {
		return "", err
	}
	defer zeroBytes(material)

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := deriveKey(material, salt)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	packed := make([]byte, 0, SaltSize+NonceSize+len(sealed))
	packed = append(packed, salt...)
	packed = append(packed, nonce...)
	packed = append(packed, sealed...)

	return EncryptedPrefix + base64.StdEncoding.EncodeToString(packed), nil
}

// Open decrypts a sealed value. Values without the encrypted prefix pass
// through unchanged, so plaintext from older versions keeps working.
func (v *Vault) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, EncryptedPrefix) {
		return sealed, nil
	}

	packed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, EncryptedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(packed) < SaltSize+NonceSize+1 {
		return "", ErrInvalidCiphertext
	}

	material, err := v.keyMaterial(false)
	if err != nil {
		return "", fmt.Errorf("failed to load key material: %w", err)
	}
	defer zeroBytes(material)

	salt := packed[:SaltSize]
	nonce := packed[SaltSize : SaltSize+NonceSize]
	ciphertext := packed[SaltSize+NonceSize:]

	key := deriveKey(material, salt)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
