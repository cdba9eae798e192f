// Package service implements the session gateway: registration, login,
// token lifecycle, password reset, and integration key management.
package service

import (
	"errors"
	"fmt"

	"github.com/researchhub/identity/internal/model"
)

// Expected, typed outcomes. The HTTP layer maps each to a stable 4xx code;
// anything else is an internal failure and surfaces as a generic 5xx.
var (
	// ErrInvalidCredentials is returned for both unknown identifiers and
	// wrong passwords so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled indicates the account exists but is deactivated.
	ErrAccountDisabled = errors.New("account deactivated")

	// ErrRefreshTokenInvalid covers malformed or unknown refresh tokens.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrRefreshTokenExpired indicates the refresh token is past expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenRevoked indicates the refresh token was already spent.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")

	// ErrResetTokenInvalid covers unknown, expired, and already-used
	// password reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")

	// ErrUserNotFound indicates the authenticated subject no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// ValidationError reports a field-level input problem the caller can fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports a duplicate identity (email or username).
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// IntegrationError reports that a provider rejected a submitted API key or
// could not be reached to validate it.
type IntegrationError struct {
	Provider model.Provider
	Message  string
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
