// Package testutil provides helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/researchhub/identity/internal/auth"
	"github.com/researchhub/identity/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 880880

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// TruncateAll wipes all application tables between tests. Assumes migrations
// have been applied to the test database.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE integration_events, refresh_tokens, integration_credentials, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// NewUser builds a persisted-shape user with sane defaults for tests.
// The password behind the hash is "Sup3r$ecret".
func NewUser(t testing.TB) *model.User {
	t.Helper()

	hash, err := auth.HashPassword("Sup3r$ecret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	id := ulid.Make().String()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.User{
		ID:           id,
		Email:        "user-" + id + "@example.com",
		Username:     "user_" + id[:10],
		PasswordHash: hash,
		IsActive:     true,
		Role:         model.RoleUser,
		Tier:         model.TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
