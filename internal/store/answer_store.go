package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/surveyrt/runtime/internal/models"
)

// AnswerStore persists the answers submitted for one page. A resubmit of
// the same page replaces its prior answers wholesale (delete-then-insert)
// rather than merging, so a respondent who goes back and changes an
// answer never leaves a stale row behind.
type AnswerStore struct {
	db *sql.DB
}

func NewAnswerStore(c *Client) *AnswerStore {
	return &AnswerStore{db: c.db}
}

// ReplacePageAnswers runs inside the caller's transaction (typically the
// same one opened by SessionStore.WithLock) so the answer replacement and
// the session's status/currentPageId update commit atomically.
func ReplacePageAnswers(ctx context.Context, tx *sql.Tx, sessionID, pageID string, answers []models.Answer) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM answers WHERE session_id = $1 AND page_id = $2`, sessionID, pageID,
	); err != nil {
		return fmt.Errorf("delete prior page answers: %w", err)
	}

	for _, a := range answers {
		body, err := json.Marshal(a.Value)
		if err != nil {
			return fmt.Errorf("marshal answer %s: %w", a.QuestionID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO answers (session_id, question_id, page_id, value, answered_at)
			VALUES ($1, $2, $3, $4, $5)`,
			sessionID, a.QuestionID, pageID, body, a.AnsweredAt,
		); err != nil {
			return fmt.Errorf("insert answer %s: %w", a.QuestionID, err)
		}
	}
	return nil
}

// LoadAll returns every answer recorded for a session, keyed by question id.
func (s *AnswerStore) LoadAll(ctx context.Context, sessionID string) (map[string]models.AnswerValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, value FROM answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	out := map[string]models.AnswerValue{}
	for rows.Next() {
		var qid string
		var body []byte
		if err := rows.Scan(&qid, &body); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		var v models.AnswerValue
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", qid, err)
		}
		out[qid] = v
	}
	return out, rows.Err()
}
