package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresOutboxStore reads unsent events in commit order.
type PostgresOutboxStore struct {
	db *sql.DB
}

func NewPostgresOutboxStore(db *sql.DB) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

func (s *PostgresOutboxStore) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY seq ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresOutboxStore) MarkSent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE outbox SET sent_at = NOW() WHERE id = $1", eventID)
	if err != nil {
		return fmt.Errorf("mark outbox event %s sent: %w", eventID, err)
	}
	return nil
}
