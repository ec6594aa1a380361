package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyrt/runtime/internal/admission"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/notify"
	"github.com/surveyrt/runtime/internal/runtime"
)

type fakeSurveyStore struct{ survey models.Survey }

func (f *fakeSurveyStore) GetPublished(ctx context.Context, surveyID string) (models.Survey, error) {
	return f.survey, nil
}

type fakeCollectorStore struct{ collector models.Collector }

func (f *fakeCollectorStore) Get(ctx context.Context, collectorID string) (models.Collector, error) {
	return f.collector, nil
}

type fakeSessionStore struct{ sess models.Session }

func (f *fakeSessionStore) Get(ctx context.Context, sessionID string) (models.Session, error) {
	return f.sess, nil
}

func (f *fakeSessionStore) FindActiveByRespondentHash(ctx context.Context, surveyID, hash string) (models.Session, error) {
	return models.Session{}, runtime.ErrNotFound
}

func (f *fakeSessionStore) SubmitPage(ctx context.Context, sessionID, pageID string, answers []models.Answer, events []models.OutboxEvent, mutate func(*models.Session)) error {
	mutate(&f.sess)
	return nil
}

func (f *fakeSessionStore) MutateWithEvents(ctx context.Context, sessionID string, events []models.OutboxEvent, mutate func(*models.Session)) error {
	mutate(&f.sess)
	return nil
}

type fakeAnswerStore struct{}

func (fakeAnswerStore) LoadAll(ctx context.Context, sessionID string) (map[string]models.AnswerValue, error) {
	return map[string]models.AnswerValue{}, nil
}

type fakeQuotaStore struct{}

func (fakeQuotaStore) LoadOpenPlans(ctx context.Context, surveyID string) ([]models.QuotaPlan, error) {
	return nil, nil
}
func (fakeQuotaStore) ReserveBucket(ctx context.Context, bucketID string, res models.QuotaReservation, event models.OutboxEvent) (bool, error) {
	return true, nil
}
func (fakeQuotaStore) FinalizeActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	return nil
}
func (fakeQuotaStore) ReleaseActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	return nil
}
func (fakeQuotaStore) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
func (fakeQuotaStore) CountCompletedSessions(ctx context.Context, surveyID string) (int, error) {
	return 0, nil
}

type fakeAdmitter struct {
	result admission.Result
	err    error
}

func (f *fakeAdmitter) Admit(ctx context.Context, req admission.Request, newSessionID func() string) (admission.Result, error) {
	return f.result, f.err
}

func onePageSurvey() models.Survey {
	return models.Survey{
		TenantID: "t1", SurveyID: "s1", Version: 1, Published: true,
		Pages: []models.Page{{PageID: "p1", Index: 0}},
	}
}

func testServer(t *testing.T, survey models.Survey, sess models.Session, admitErr error) (*Server, *fakeSessionStore) {
	t.Helper()
	sessions := &fakeSessionStore{sess: sess}
	ctrl := runtime.NewController(
		&fakeSurveyStore{survey: survey},
		&fakeCollectorStore{collector: models.Collector{CollectorID: sess.CollectorID, Slug: "acme"}},
		sessions,
		fakeAnswerStore{},
		fakeQuotaStore{},
		&fakeAdmitter{result: admission.Result{Session: sess}, err: admitErr},
		notify.NoopMailer{},
	)
	s := NewServer(ctrl)
	require.NoError(t, s.ValidateWiring())
	return s, sessions
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t, onePageSurvey(), models.Session{SessionID: "sess1", Status: models.SessionInProgress}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartReturnsSessionAndFirstPage(t *testing.T) {
	sess := models.Session{SessionID: "sess1", SurveyID: "s1", Status: models.SessionInProgress}
	s, _ := testServer(t, onePageSurvey(), sess, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runtime/start?slug=acme", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sess1", body.SessionID)
	assert.Equal(t, "p1", body.FirstPageID)
}

func TestStartAdmissionBlockedReturns403(t *testing.T) {
	s, _ := testServer(t, onePageSurvey(), models.Session{}, &admission.BlockedError{Reason: "vpn_blocked"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runtime/start?slug=acme", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "vpn_blocked", body["reason"])
}

func TestGetPageLayoutRequiresInProgress(t *testing.T) {
	sess := models.Session{SessionID: "sess1", SurveyID: "s1", Status: models.SessionCompleted}
	s, _ := testServer(t, onePageSurvey(), sess, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runtime/sess1/pages/p1/layout", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAnswersValidationViolationReturns400(t *testing.T) {
	survey := onePageSurvey()
	survey.Pages[0].Questions = []models.Question{
		{QuestionID: "q1", PageID: "p1", Type: models.QuestionText, Required: true},
	}
	sess := models.Session{SessionID: "sess1", SurveyID: "s1", Status: models.SessionInProgress}
	s, _ := testServer(t, survey, sess, nil)

	body, _ := json.Marshal(submitAnswersRequest{PageID: "p1"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runtime/sess1/answers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["violations"])
}

func TestSubmitAnswersHappyPathReturnsComplete(t *testing.T) {
	survey := onePageSurvey()
	sess := models.Session{SessionID: "sess1", SurveyID: "s1", Status: models.SessionInProgress}
	s, _ := testServer(t, survey, sess, nil)

	body, _ := json.Marshal(submitAnswersRequest{PageID: "p1"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runtime/sess1/answers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp submitAnswersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Complete)
}

func TestTerminateEndpoint(t *testing.T) {
	sess := models.Session{SessionID: "sess1", SurveyID: "s1", Status: models.SessionInProgress}
	s, sessions := testServer(t, onePageSurvey(), sess, nil)

	body, _ := json.Marshal(terminateRequest{Reason: "user_abort"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runtime/sess1/terminate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionTerminated, sessions.sess.Status)
	assert.Equal(t, "user_abort", sessions.sess.TerminationReason)
}

func TestStatusEndpoint(t *testing.T) {
	sess := models.Session{SessionID: "sess1", SurveyID: "s1", CollectorID: "c1", Status: models.SessionInProgress, StartedAt: time.Now()}
	s, _ := testServer(t, onePageSurvey(), sess, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runtime/sess1/status", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.SessionInProgress, resp.Status)
	assert.Equal(t, "acme", resp.Collector.Slug)
}
