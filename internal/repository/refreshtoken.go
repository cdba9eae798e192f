package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/researchhub/identity/internal/model"
)

// Refresh token consumption failures.
var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRefreshTokenConsumed = errors.New("refresh token already consumed")
)

// CreateRefreshToken persists a new refresh token row.
func (r *Repository) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken atomically spends a refresh token and returns the user
// it belongs to. The conditional UPDATE is the compare-and-invalidate step:
// two concurrent attempts on the same token hash can match at most one row,
// so exactly one caller wins and the loser gets ErrRefreshTokenConsumed.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `
		UPDATE refresh_tokens
		SET consumed_at = $2
		WHERE token_hash = $1
		  AND consumed_at IS NULL
		  AND expires_at > $2
		RETURNING user_id
	`

	var userID string
	err := r.pool.QueryRow(ctx, query, tokenHash, now).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to consume refresh token: %w", err)
	}

	// The CAS missed; classify why for the caller's error mapping.
	return "", r.classifyRefreshFailure(ctx, tokenHash, now)
}

// classifyRefreshFailure inspects a token row after a failed consumption.
func (r *Repository) classifyRefreshFailure(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		SELECT expires_at, consumed_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var expiresAt time.Time
	var consumedAt *time.Time
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&expiresAt, &consumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRefreshTokenNotFound
		}
		return fmt.Errorf("failed to inspect refresh token: %w", err)
	}

	if consumedAt != nil {
		return ErrRefreshTokenConsumed
	}
	if !now.Before(expiresAt) {
		return ErrRefreshTokenExpired
	}
	// Raced with a concurrent consumer between the UPDATE and this SELECT.
	return ErrRefreshTokenConsumed
}

// RevokeRefreshToken marks a token consumed without issuing a replacement.
// Used by logout; idempotent, so revoking an unknown or already-consumed
// token is not an error.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, tokenHash, now); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens consumes every active token for a user.
// Called after a password reset so stolen refresh tokens die with the old
// password.
func (r *Repository) RevokeUserRefreshTokens(ctx context.Context, userID string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET consumed_at = $2
		WHERE user_id = $1 AND consumed_at IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, userID, now); err != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens removes rows whose expiry passed before the
// cutoff. Returns the number of rows removed.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
