package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/surveyrt/runtime/internal/models"
)

// SessionStore persists respondent sessions. Status/currentPageId/
// progressData mutations go through WithLock, which takes a row-level
// lock for the duration of the callback so two concurrent submits for the
// same session can't race.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{db: c.db}
}

func (s *SessionStore) Create(ctx context.Context, sess models.Session) error {
	meta, err := json.Marshal(sess.Meta)
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}
	renderState, err := json.Marshal(sess.RenderState)
	if err != nil {
		return fmt.Errorf("marshal render state: %w", err)
	}
	progress, err := json.Marshal(sess.ProgressData)
	if err != nil {
		return fmt.Errorf("marshal progress data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, tenant_id, survey_id, collector_id, status, started_at,
			finalized_at, current_page_id, last_activity_at, respondent_hash,
			termination_reason, meta, render_state, progress_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sess.SessionID, sess.TenantID, sess.SurveyID, sess.CollectorID, sess.Status, sess.StartedAt,
		sess.FinalizedAt, sess.CurrentPageID, sess.LastActivityAt, sess.RespondentHash,
		sess.TerminationReason, meta, renderState, progress,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (models.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, selectSessionSQL+` WHERE session_id = $1`, sessionID))
}

// FindActiveByRespondentHash supports the "prior submission exists" checks
// settings.Admission and settings.Completion need.
func (s *SessionStore) FindActiveByRespondentHash(ctx context.Context, surveyID, respondentHash string) (models.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		selectSessionSQL+` WHERE survey_id = $1 AND respondent_hash = $2 ORDER BY started_at DESC LIMIT 1`,
		surveyID, respondentHash,
	))
}

func (s *SessionStore) CountCompleted(ctx context.Context, surveyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sessions WHERE survey_id = $1 AND status = $2`,
		surveyID, models.SessionCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed sessions: %w", err)
	}
	return n, nil
}

// ReleaseAbandoned transitions every IN_PROGRESS session whose
// last_activity_at predates the cutoff to ABANDONED, for the background
// sweep described in spec.md §4.7's incomplete-session TTL.
func (s *SessionStore) ReleaseAbandoned(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1
		WHERE status = $2 AND last_activity_at < $3`,
		models.SessionAbandoned, models.SessionInProgress, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("release abandoned sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release abandoned rows affected: %w", err)
	}
	return int(n), nil
}

// WithLock loads the session row with FOR UPDATE inside a transaction,
// hands it to fn for in-place mutation, persists whatever fn leaves in
// the pointer, and commits. fn returning an error aborts the transaction
// with no write.
func (s *SessionStore) WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context, tx *sql.Tx, sess *models.Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session lock: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx, selectSessionSQL+` WHERE session_id = $1 FOR UPDATE`, sessionID))
	if err != nil {
		return err
	}

	if err := fn(ctx, tx, &sess); err != nil {
		return err
	}

	if err := updateSession(ctx, tx, sess); err != nil {
		return err
	}

	return tx.Commit()
}

// MutateWithEvents takes the session row lock, hands the session to
// mutate for in-place changes, inserts every outbox event, and commits
// all of it atomically — for state transitions (complete, terminate)
// that don't touch the answers table.
func (s *SessionStore) MutateWithEvents(ctx context.Context, sessionID string, events []models.OutboxEvent, mutate func(*models.Session)) error {
	return s.WithLock(ctx, sessionID, func(ctx context.Context, tx *sql.Tx, sess *models.Session) error {
		mutate(sess)
		for _, ev := range events {
			if err := Insert(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// SubmitPage atomically replaces a page's answers, mutates the session
// row, and inserts any outbox events the submission produced — the
// single-transaction guarantee spec.md §4.8 requires for submitAnswers.
func (s *SessionStore) SubmitPage(ctx context.Context, sessionID, pageID string, answers []models.Answer, events []models.OutboxEvent, mutate func(*models.Session)) error {
	return s.WithLock(ctx, sessionID, func(ctx context.Context, tx *sql.Tx, sess *models.Session) error {
		if err := ReplacePageAnswers(ctx, tx, sessionID, pageID, answers); err != nil {
			return err
		}
		mutate(sess)
		for _, ev := range events {
			if err := Insert(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

const selectSessionSQL = `
	SELECT session_id, tenant_id, survey_id, collector_id, status, started_at,
	       finalized_at, current_page_id, last_activity_at, respondent_hash,
	       termination_reason, meta, render_state, progress_data
	FROM sessions`

func scanSession(row *sql.Row) (models.Session, error) {
	var sess models.Session
	var meta, renderState, progress []byte
	err := row.Scan(
		&sess.SessionID, &sess.TenantID, &sess.SurveyID, &sess.CollectorID, &sess.Status, &sess.StartedAt,
		&sess.FinalizedAt, &sess.CurrentPageID, &sess.LastActivityAt, &sess.RespondentHash,
		&sess.TerminationReason, &meta, &renderState, &progress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal(meta, &sess.Meta); err != nil {
		return models.Session{}, fmt.Errorf("decode session meta: %w", err)
	}
	if err := json.Unmarshal(renderState, &sess.RenderState); err != nil {
		return models.Session{}, fmt.Errorf("decode render state: %w", err)
	}
	if err := json.Unmarshal(progress, &sess.ProgressData); err != nil {
		return models.Session{}, fmt.Errorf("decode progress data: %w", err)
	}
	return sess, nil
}

func updateSession(ctx context.Context, tx *sql.Tx, sess models.Session) error {
	renderState, err := json.Marshal(sess.RenderState)
	if err != nil {
		return fmt.Errorf("marshal render state: %w", err)
	}
	progress, err := json.Marshal(sess.ProgressData)
	if err != nil {
		return fmt.Errorf("marshal progress data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2, finalized_at = $3, current_page_id = $4,
			last_activity_at = $5, termination_reason = $6,
			render_state = $7, progress_data = $8
		WHERE session_id = $1`,
		sess.SessionID, sess.Status, sess.FinalizedAt, sess.CurrentPageID,
		sess.LastActivityAt, sess.TerminationReason, renderState, progress,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
