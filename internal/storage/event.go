package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/integrityx/forensics/pkg/models"
)

// EventRepository is the append-only custody event log. Events are ordered
// by timestamp with the insertion sequence breaking ties, so replays are
// stable even when two events share a timestamp.
type EventRepository interface {
	Append(ctx context.Context, documentID uuid.UUID, event models.TimelineEvent) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.TimelineEvent, error)
	ListSince(ctx context.Context, since time.Time) ([]models.TimelineEvent, error)
}

// PostgresEventRepository implements EventRepository using PostgreSQL
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// Append inserts one event. The seq column is a bigserial assigned by the
// database; events are never updated or deleted.
func (r *PostgresEventRepository) Append(ctx context.Context, documentID uuid.UUID, event models.TimelineEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO events (document_id, event_type, actor_id, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		documentID,
		string(event.EventType),
		event.ActorID,
		event.Timestamp,
		metadata,
	)

	return err
}

// ListByDocument retrieves the full event log for one document in replay
// order.
func (r *PostgresEventRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.TimelineEvent, error) {
	query := `
		SELECT document_id, event_type, actor_id, occurred_at, metadata
		FROM events
		WHERE document_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListSince retrieves all events on or after the given time across the
// whole corpus, in replay order.
func (r *PostgresEventRepository) ListSince(ctx context.Context, since time.Time) ([]models.TimelineEvent, error) {
	query := `
		SELECT document_id, event_type, actor_id, occurred_at, metadata
		FROM events
		WHERE occurred_at >= $1
		ORDER BY occurred_at ASC, seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.TimelineEvent, error) {
	var events []models.TimelineEvent
	for rows.Next() {
		var (
			event     models.TimelineEvent
			docID     uuid.UUID
			eventType string
			metadata  []byte
		)
		err := rows.Scan(
			&docID,
			&eventType,
			&event.ActorID,
			&event.Timestamp,
			&metadata,
		)
		if err != nil {
			return nil, err
		}
		event.DocumentID = docID.String()
		event.EventType = models.EventType(eventType)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
