package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/surveyrt/runtime/internal/models"
)

// ErrNotFound is returned by every repository lookup that finds no row.
var ErrNotFound = errors.New("store: not found")

// SurveyStore loads and publishes versioned survey definitions. The
// page/group/question tree is stored as a single JSONB document per
// (survey_id, version) rather than modeled relationally — see DESIGN.md.
type SurveyStore struct {
	db *sql.DB
}

func NewSurveyStore(c *Client) *SurveyStore {
	return &SurveyStore{db: c.db}
}

// Put inserts a new version of a survey's definition.
func (s *SurveyStore) Put(ctx context.Context, survey models.Survey) error {
	body, err := json.Marshal(survey)
	if err != nil {
		return fmt.Errorf("marshal survey: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO surveys (tenant_id, survey_id, version, published, definition)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (survey_id, version) DO UPDATE
		SET published = EXCLUDED.published, definition = EXCLUDED.definition`,
		survey.TenantID, survey.SurveyID, survey.Version, survey.Published, body,
	)
	if err != nil {
		return fmt.Errorf("put survey: %w", err)
	}
	return nil
}

// Get loads one exact (surveyID, version).
func (s *SurveyStore) Get(ctx context.Context, surveyID string, version int) (models.Survey, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM surveys WHERE survey_id = $1 AND version = $2`,
		surveyID, version,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Survey{}, ErrNotFound
	}
	if err != nil {
		return models.Survey{}, fmt.Errorf("get survey: %w", err)
	}
	return decodeSurvey(body)
}

// GetPublished loads the currently published version, the shape the
// runtime controller resolves against for a new or resumed session.
func (s *SurveyStore) GetPublished(ctx context.Context, surveyID string) (models.Survey, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM surveys WHERE survey_id = $1 AND published LIMIT 1`,
		surveyID,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Survey{}, ErrNotFound
	}
	if err != nil {
		return models.Survey{}, fmt.Errorf("get published survey: %w", err)
	}
	return decodeSurvey(body)
}

func decodeSurvey(body []byte) (models.Survey, error) {
	var survey models.Survey
	if err := json.Unmarshal(body, &survey); err != nil {
		return models.Survey{}, fmt.Errorf("decode survey: %w", err)
	}
	return survey, nil
}
