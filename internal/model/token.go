package model

import "time"

// RefreshToken is a persisted, single-use credential for obtaining a new
// access token. Only the SHA-256 hash of the opaque token is stored.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"` // Never serialize
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsConsumed reports whether the token has already been spent.
func (t *RefreshToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// IsExpired reports whether the token is past its expiry.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair bundles the two credentials issued on successful authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
