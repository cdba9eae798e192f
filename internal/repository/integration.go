package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/researchhub/identity/internal/model"
)

// ErrCredentialNotFound indicates no credential is stored for the
// (user, provider) pair.
var ErrCredentialNotFound = errors.New("integration credential not found")

// UpsertIntegrationCredential stores a provider key for a user, overwriting
// any prior value for that provider.
func (r *Repository) UpsertIntegrationCredential(ctx context.Context, cred *model.IntegrationCredential) error {
	query := `
		INSERT INTO integration_credentials (
			id, user_id, provider, encrypted_key, last_validated_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET encrypted_key     = EXCLUDED.encrypted_key,
		    last_validated_at = EXCLUDED.last_validated_at,
		    updated_at        = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		cred.ID,
		cred.UserID,
		string(cred.Provider),
		cred.EncryptedKey,
		cred.LastValidatedAt,
		cred.CreatedAt,
		cred.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert integration credential: %w", err)
	}
	return nil
}

// RemoveIntegrationCredential deletes the credential for a provider.
// Idempotent: removing an absent credential is not an error.
func (r *Repository) RemoveIntegrationCredential(ctx context.Context, userID string, provider model.Provider) error {
	query := `
		DELETE FROM integration_credentials
		WHERE user_id = $1 AND provider = $2
	`

	if _, err := r.pool.Exec(ctx, query, userID, string(provider)); err != nil {
		return fmt.Errorf("failed to remove integration credential: %w", err)
	}
	return nil
}

// GetIntegrationCredential retrieves the credential for a (user, provider) pair.
func (r *Repository) GetIntegrationCredential(ctx context.Context, userID string, provider model.Provider) (*model.IntegrationCredential, error) {
	query := `
		SELECT id, user_id, provider, encrypted_key, last_validated_at, created_at, updated_at
		FROM integration_credentials
		WHERE user_id = $1 AND provider = $2
	`

	var cred model.IntegrationCredential
	err := r.pool.QueryRow(ctx, query, userID, string(provider)).Scan(
		&cred.ID,
		&cred.UserID,
		&cred.Provider,
		&cred.EncryptedKey,
		&cred.LastValidatedAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get integration credential: %w", err)
	}

	return &cred, nil
}

// ListIntegrationCredentials returns all stored credentials for a user.
func (r *Repository) ListIntegrationCredentials(ctx context.Context, userID string) ([]*model.IntegrationCredential, error) {
	query := `
		SELECT id, user_id, provider, encrypted_key, last_validated_at, created_at, updated_at
		FROM integration_credentials
		WHERE user_id = $1
		ORDER BY provider
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration credentials: %w", err)
	}
	defer rows.Close()

	var creds []*model.IntegrationCredential
	for rows.Next() {
		var cred model.IntegrationCredential
		if err := rows.Scan(
			&cred.ID,
			&cred.UserID,
			&cred.Provider,
			&cred.EncryptedKey,
			&cred.LastValidatedAt,
			&cred.CreatedAt,
			&cred.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan integration credential: %w", err)
		}
		creds = append(creds, &cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate integration credentials: %w", err)
	}
	return creds, nil
}
