package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surveyrt/runtime/internal/models"
)

// OutboxStore persists pending domain events and lets a relay worker
// drain them, grounded on pkg/events/publisher.go's persist-and-notify
// split: writers insert in the same transaction as the state change, a
// background poller publishes and marks rows done.
type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(c *Client) *OutboxStore {
	return &OutboxStore{db: c.db}
}

// Insert runs inside the caller's transaction so the event commits
// atomically with the state change it describes.
func Insert(ctx context.Context, tx *sql.Tx, ev models.OutboxEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (event_id, type, tenant_id, survey_id, session_id, payload)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.EventID, ev.Type, ev.TenantID, ev.SurveyID, ev.SessionID, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// LoadUnpublished returns up to limit unpublished events in insertion order.
func (s *OutboxStore) LoadUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, type, tenant_id, survey_id, session_id, payload, created_at, attempts, last_error
		FROM outbox_events WHERE published_at IS NULL ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load unpublished events: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var ev models.OutboxEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Type, &ev.TenantID, &ev.SurveyID, &ev.SessionID,
			&payload, &ev.CreatedAt, &ev.Attempts, &ev.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkPublished stamps publishedAt so the event is skipped by future polls.
func (s *OutboxStore) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}

// MarkFailed records a publish attempt that failed. The row stays
// unpublished, so the next poll retries it; there is no backoff and no
// cap on attempts.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}
