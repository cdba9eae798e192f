package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// refreshTokenBytes is the entropy of a refresh token before encoding.
const refreshTokenBytes = 32

// GenerateRefreshToken produces an opaque refresh token and the SHA-256 hash
// under which it is persisted. The plaintext is returned to the client once
// and never stored.
func GenerateRefreshToken() (plaintext, hash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}

	plaintext = base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the hex-encoded SHA-256 digest of an opaque token.
// Used as the storage and lookup key for refresh and reset tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateResetToken produces an opaque password-reset token and its hash.
// Same shape as refresh tokens; kept separate so call sites read clearly.
func GenerateResetToken() (plaintext, hash string, err error) {
	return GenerateRefreshToken()
}
