package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/surveyrt/runtime/internal/models"
)

// CollectorStore resolves the slug/token a respondent enters through into
// the collector and (for single-use links) invite it belongs to.
type CollectorStore struct {
	db *sql.DB
}

func NewCollectorStore(c *Client) *CollectorStore {
	return &CollectorStore{db: c.db}
}

func (s *CollectorStore) GetBySlug(ctx context.Context, slug string) (models.Collector, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collector_id, survey_id, slug, type, open_at, close_at,
		       max_responses, allow_test_mode, test_response_mode, block_devices
		FROM collectors WHERE slug = $1`, slug)
	return scanCollector(row)
}

func (s *CollectorStore) Get(ctx context.Context, collectorID string) (models.Collector, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collector_id, survey_id, slug, type, open_at, close_at,
		       max_responses, allow_test_mode, test_response_mode, block_devices
		FROM collectors WHERE collector_id = $1`, collectorID)
	return scanCollector(row)
}

func scanCollector(row *sql.Row) (models.Collector, error) {
	var c models.Collector
	var blockDevices []byte
	err := row.Scan(&c.CollectorID, &c.SurveyID, &c.Slug, &c.Type, &c.OpenAt, &c.CloseAt,
		&c.MaxResponses, &c.AllowTestMode, &c.TestResponseMode, &blockDevices)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Collector{}, ErrNotFound
	}
	if err != nil {
		return models.Collector{}, fmt.Errorf("scan collector: %w", err)
	}
	if len(blockDevices) > 0 {
		if err := json.Unmarshal(blockDevices, &c.BlockDevices); err != nil {
			return models.Collector{}, fmt.Errorf("decode block_devices: %w", err)
		}
	}
	return c, nil
}

// CountSessions returns the number of sessions this collector has produced,
// for MaxResponses enforcement.
func (s *CollectorStore) CountSessions(ctx context.Context, collectorID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sessions WHERE collector_id = $1`, collectorID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count collector sessions: %w", err)
	}
	return n, nil
}

// InviteStore manages single-use tokens owned by a SINGLE_USE collector.
type InviteStore struct {
	db *sql.DB
}

func NewInviteStore(c *Client) *InviteStore {
	return &InviteStore{db: c.db}
}

func (s *InviteStore) GetByToken(ctx context.Context, token string) (models.Invite, error) {
	var inv models.Invite
	err := s.db.QueryRowContext(ctx, `
		SELECT invite_id, collector_id, token, email, external_id, expires_at, consumed_at
		FROM invites WHERE token = $1`, token,
	).Scan(&inv.InviteID, &inv.CollectorID, &inv.Token, &inv.Email, &inv.ExternalID, &inv.ExpiresAt, &inv.ConsumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invite{}, ErrNotFound
	}
	if err != nil {
		return models.Invite{}, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

// Consume marks the invite used, but only if it wasn't already — a
// conditional UPDATE so two concurrent redemptions can't both succeed,
// mirroring the quota bucket's reservation pattern.
func (s *InviteStore) Consume(ctx context.Context, inviteID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invites SET consumed_at = now()
		WHERE invite_id = $1 AND consumed_at IS NULL`, inviteID)
	if err != nil {
		return false, fmt.Errorf("consume invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume invite rows affected: %w", err)
	}
	return n == 1, nil
}
