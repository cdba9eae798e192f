package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/researchhub/identity/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

const userColumns = `
	id, email, username, password_hash,
	first_name, last_name, organization, bio,
	is_active, is_verified, role, tier,
	last_login_at, login_count, searches_today, last_search_date,
	created_at, updated_at
`

// CreateUser inserts a new user into the database.
// Duplicate email or username resolve to typed errors keyed on the violated
// constraint.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, username, password_hash,
			first_name, last_name, organization, bio,
			is_active, is_verified, role, tier,
			login_count, searches_today,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Organization,
		user.Bio,
		user.IsActive,
		user.IsVerified,
		user.Role,
		user.Tier,
		user.LoginCount,
		user.SearchesToday,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		switch violatedConstraint(err) {
		case "users_email_key":
			return ErrEmailExists
		case "users_username_lower_key", "users_username_key":
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByIdentifier retrieves a user by email or case-insensitive username.
// Used by the login flow, which accepts either.
func (r *Repository) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = lower($1) OR lower(username) = lower($1)
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, identifier))
}

// UpdateProfile applies the non-nil fields of the update to the user row.
func (r *Repository) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	query := `
		UPDATE users
		SET first_name   = COALESCE($2, first_name),
		    last_name    = COALESCE($3, last_name),
		    organization = COALESCE($4, organization),
		    bio          = COALESCE($5, bio),
		    updated_at   = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID,
		update.FirstName, update.LastName, update.Organization, update.Bio)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps a successful login on the user row.
func (r *Repository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE users
		SET last_login_at = $2, login_count = login_count + 1, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, userID, at); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// SetPasswordReset stores the hash and expiry of a new reset token,
// replacing any previous one.
func (r *Repository) SetPasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET password_reset_token_hash = $2,
		    password_reset_expires_at = $3,
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set password reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ResetPasswordByToken swaps in the new password hash and clears the reset
// token in one statement. The WHERE clause enforces freshness and single use:
// a second attempt with the same token matches no rows.
func (r *Repository) ResetPasswordByToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	query := `
		UPDATE users
		SET password_hash = $2,
		    password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = now()
		WHERE password_reset_token_hash = $1
		  AND password_reset_expires_at > $3
		RETURNING id
	`

	var userID string
	err := r.pool.QueryRow(ctx, query, tokenHash, newPasswordHash, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to reset password: %w", err)
	}
	return userID, nil
}

// scanUser reads one user row.
func (r *Repository) scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Organization,
		&user.Bio,
		&user.IsActive,
		&user.IsVerified,
		&user.Role,
		&user.Tier,
		&user.LastLoginAt,
		&user.LoginCount,
		&user.SearchesToday,
		&user.LastSearchDate,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
