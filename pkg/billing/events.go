package billing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository persists processed webhook event IDs.
type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// MarkProcessed claims an event ID. It returns true only for the first
// delivery; the unique key makes redeliveries lose the race cleanly.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO processed_webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops a claim after a failed handler. The next delivery of
// the same event then wins MarkProcessed again and retries.
func (r *EventRepository) Release(ctx context.Context, eventID string) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM processed_webhook_events WHERE event_id = $1`,
		eventID); err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	return nil
}
