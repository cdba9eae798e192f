// Package secrets encrypts integration API keys before they reach the
// database. Values carry a prefix marker so legacy plaintext rows can be
// read during migration windows.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// prefix marks encrypted values in storage.
const prefix = "enc::"

// ErrDecrypt indicates a stored value could not be decrypted with the
// configured secret.
var ErrDecrypt = errors.New("secrets: decryption failed")

// Box seals and opens provider API keys with XChaCha20-Poly1305.
// The key is derived from the service secret, so every instance sharing the
// secret can read each other's writes.
type Box struct {
	key [chacha20poly1305.KeySize]byte
}

// NewBox derives an encryption key from the given secret.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("secrets: empty secret")
	}
	b := &Box{key: sha256.Sum256([]byte(secret))}
	return b, nil
}

// Seal encrypts a plaintext key for storage. Empty input stays empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored value. Values without the encryption prefix are
// returned as-is (plaintext fallback, matching legacy rows).
func (b *Box) Open(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", ErrDecrypt
	}

	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encryption marker.
func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}
