// Package model defines domain entities for the application.
package model

import "time"

// Role constants for user accounts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Subscription tier constants.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// TierQuotas maps subscription tiers to their daily search quota.
// -1 means unlimited.
var TierQuotas = map[string]int{
	TierFree:       10,
	TierPro:        100,
	TierEnterprise: -1,
}

// User represents an account identity with profile and usage state.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Never serialize

	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Bio          string `json:"bio,omitempty"`

	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
	Role       string `json:"role"`
	Tier       string `json:"tier"`

	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	LoginCount     int        `json:"login_count"`
	SearchesToday  int        `json:"searches_today"`
	LastSearchDate *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchQuota returns the daily search limit for the user's tier.
func (u *User) SearchQuota() int {
	if quota, ok := TierQuotas[u.Tier]; ok {
		return quota
	}
	return TierQuotas[TierFree]
}

// CanSearch reports whether the user has quota left today.
// The daily counter resets when the last recorded search is from a prior day.
func (u *User) CanSearch(now time.Time) bool {
	quota := u.SearchQuota()
	if quota == -1 {
		return true
	}
	if u.LastSearchDate == nil {
		return true
	}
	if beforeDay(*u.LastSearchDate, now) {
		return true
	}
	return u.SearchesToday < quota
}

// beforeDay reports whether a falls on an earlier UTC calendar day than b.
func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// ProfileUpdate carries optional profile field changes.
// Nil pointers mean the field is untouched.
type ProfileUpdate struct {
	FirstName    *string
	LastName     *string
	Organization *string
	Bio          *string
}
