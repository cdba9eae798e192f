package repository

import (
	"context"
	"fmt"

	"github.com/researchhub/identity/internal/model"
)

// RecordIntegrationEvent appends an audit record of integration key activity.
func (r *Repository) RecordIntegrationEvent(ctx context.Context, event *model.IntegrationEvent) error {
	query := `
		INSERT INTO integration_events (id, user_id, provider, action, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		string(event.Provider),
		event.Action,
		event.Status,
		event.Message,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record integration event: %w", err)
	}
	return nil
}

// ListIntegrationEvents returns a user's most recent integration events,
// newest first.
func (r *Repository) ListIntegrationEvents(ctx context.Context, userID string, limit int) ([]*model.IntegrationEvent, error) {
	query := `
		SELECT id, user_id, provider, action, status, message, created_at
		FROM integration_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration events: %w", err)
	}
	defer rows.Close()

	var events []*model.IntegrationEvent
	for rows.Next() {
		var event model.IntegrationEvent
		if err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.Provider,
			&event.Action,
			&event.Status,
			&event.Message,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan integration event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate integration events: %w", err)
	}
	return events, nil
}
