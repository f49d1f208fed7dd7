// Package security implements the authenticated encryption used to store
// Credential passwords at rest (spec I5). The source system (see
// original_source/app/security.py) uses Fernet, a symmetric
// authenticated-encryption scheme; the idiomatic Go equivalent used across
// the example pack's golang.org/x/crypto dependency is chacha20poly1305, an
// AEAD cipher with the same authenticity guarantee. A decryption failure is
// always a hard error — this package never returns a silent empty string.
package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required raw key length in bytes.
const KeySize = chacha20poly1305.KeySize // 32

// Box performs AEAD encryption/decryption with a single process-wide key,
// loaded once at process start (spec §5 "no global mutable singletons
// beyond the immutable encryption key").
type Box struct {
	aead cipher.AEAD
}

// NewBox constructs a Box from a raw 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.New: %w", err)
	}
	return &Box{aead: aead}, nil
}

// DecodeKey parses a URL-safe base64-encoded 32-byte key (spec §6.4).
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate unpadded input, matching common env-var conventions.
		key, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("decoded encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext ready for storage.
func (b *Box) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal. A malformed or
// tampered blob is a hard error (I5) — never a silent empty string.
func (b *Box) Open(sealed []byte) (string, error) {
	n := b.aead.NonceSize()
	if len(sealed) < n {
		return "", fmt.Errorf("ciphertext shorter than nonce size")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plaintext), nil
}
