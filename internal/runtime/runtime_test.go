package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyrt/runtime/internal/admission"
	"github.com/surveyrt/runtime/internal/cache"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/notify"
	"github.com/surveyrt/runtime/internal/store"
)

// --- fakes -------------------------------------------------------------

type fakeSurveyStore struct{ survey models.Survey }

func (f *fakeSurveyStore) GetPublished(ctx context.Context, surveyID string) (models.Survey, error) {
	return f.survey, nil
}

type fakeCollectorStore struct{ collectors map[string]models.Collector }

func (f *fakeCollectorStore) Get(ctx context.Context, collectorID string) (models.Collector, error) {
	c, ok := f.collectors[collectorID]
	if !ok {
		return models.Collector{}, store.ErrNotFound
	}
	return c, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	events   []models.OutboxEvent
}

func newFakeSessionStore(sessions ...models.Session) *fakeSessionStore {
	f := &fakeSessionStore{sessions: map[string]models.Session{}}
	for _, s := range sessions {
		f.sessions[s.SessionID] = s
	}
	return f
}

func (f *fakeSessionStore) Get(ctx context.Context, sessionID string) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return models.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionStore) FindActiveByRespondentHash(ctx context.Context, surveyID, hash string) (models.Session, error) {
	return models.Session{}, store.ErrNotFound
}

func (f *fakeSessionStore) SubmitPage(ctx context.Context, sessionID, pageID string, answers []models.Answer, events []models.OutboxEvent, mutate func(*models.Session)) error {
	return f.MutateWithEvents(ctx, sessionID, events, mutate)
}

func (f *fakeSessionStore) MutateWithEvents(ctx context.Context, sessionID string, events []models.OutboxEvent, mutate func(*models.Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	mutate(&s)
	f.sessions[sessionID] = s
	f.events = append(f.events, events...)
	return nil
}

type fakeAnswerStore struct {
	mu      sync.Mutex
	answers map[string]map[string]models.AnswerValue
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{answers: map[string]map[string]models.AnswerValue{}}
}

func (f *fakeAnswerStore) LoadAll(ctx context.Context, sessionID string) (map[string]models.AnswerValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]models.AnswerValue{}
	for k, v := range f.answers[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAnswerStore) record(sessionID string, answers []models.Answer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers[sessionID] == nil {
		f.answers[sessionID] = map[string]models.AnswerValue{}
	}
	for _, a := range answers {
		f.answers[sessionID][a.QuestionID] = a.Value
	}
}

// recordingSessionStore wraps fakeSessionStore to also persist answers into
// a fakeAnswerStore, mirroring the real SubmitPage's atomic combination.
type recordingSessionStore struct {
	*fakeSessionStore
	answers *fakeAnswerStore
}

func (r *recordingSessionStore) SubmitPage(ctx context.Context, sessionID, pageID string, answers []models.Answer, events []models.OutboxEvent, mutate func(*models.Session)) error {
	r.answers.record(sessionID, answers)
	return r.fakeSessionStore.MutateWithEvents(ctx, sessionID, events, mutate)
}

type fakeQuotaStore struct {
	mu     sync.Mutex
	plans  []models.QuotaPlan
	resvs  map[string]models.QuotaReservation
	events []models.OutboxEvent
}

func newFakeQuotaStore(plans ...models.QuotaPlan) *fakeQuotaStore {
	return &fakeQuotaStore{plans: plans, resvs: map[string]models.QuotaReservation{}}
}

func (f *fakeQuotaStore) bucket(id string) *models.QuotaBucket {
	for pi := range f.plans {
		for bi := range f.plans[pi].Buckets {
			if f.plans[pi].Buckets[bi].BucketID == id {
				return &f.plans[pi].Buckets[bi]
			}
		}
	}
	return nil
}

func (f *fakeQuotaStore) LoadOpenPlans(ctx context.Context, surveyID string) ([]models.QuotaPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.QuotaPlan
	for _, p := range f.plans {
		if p.State == models.QuotaPlanOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeQuotaStore) ReserveBucket(ctx context.Context, bucketID string, res models.QuotaReservation, event models.OutboxEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bucket(bucketID)
	if b == nil || b.Saturated() {
		return false, nil
	}
	b.ReservedN++
	f.resvs[res.ReservationID] = res
	f.events = append(f.events, event)
	return true, nil
}

func (f *fakeQuotaStore) FinalizeActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	transitioned := false
	for id, r := range f.resvs {
		if r.SessionID != sessionID || r.Status != models.ReservationActive {
			continue
		}
		r.Status = models.ReservationFinalized
		f.resvs[id] = r
		if b := f.bucket(r.BucketID); b != nil {
			b.ReservedN--
			b.FilledN++
		}
		transitioned = true
	}
	if transitioned {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeQuotaStore) ReleaseActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	transitioned := false
	for id, r := range f.resvs {
		if r.SessionID != sessionID || r.Status != models.ReservationActive {
			continue
		}
		r.Status = models.ReservationReleased
		f.resvs[id] = r
		if b := f.bucket(r.BucketID); b != nil {
			b.ReservedN--
		}
		transitioned = true
	}
	if transitioned {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeQuotaStore) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (f *fakeQuotaStore) CountCompletedSessions(ctx context.Context, surveyID string) (int, error) {
	return 0, nil
}

type fakeAdmitter struct {
	session models.Session
	resumed bool
}

func (f *fakeAdmitter) Admit(ctx context.Context, req admission.Request, newSessionID func() string) (admission.Result, error) {
	return admission.Result{Session: f.session, Resumed: f.resumed}, nil
}

// --- fixtures ------------------------------------------------------------

func threePageSurvey() models.Survey {
	q1 := models.Question{QuestionID: "q1", PageID: "p1", Type: models.QuestionText, Required: true, VariableName: "Q1"}
	return models.Survey{
		TenantID: "t1", SurveyID: "s1", Version: 1, Published: true,
		Pages: []models.Page{
			{PageID: "p1", Index: 0, Questions: []models.Question{q1}},
			{PageID: "p2", Index: 1},
			{PageID: "p3", Index: 2},
		},
	}
}

func newController(survey models.Survey, sess models.Session, qplans ...models.QuotaPlan) (*Controller, *recordingSessionStore, *fakeAnswerStore) {
	sessions := newFakeSessionStore(sess)
	answers := newFakeAnswerStore()
	recording := &recordingSessionStore{fakeSessionStore: sessions, answers: answers}
	quotaStore := newFakeQuotaStore(qplans...)
	ctrl := NewController(
		&fakeSurveyStore{survey: survey},
		&fakeCollectorStore{collectors: map[string]models.Collector{}},
		recording,
		answers,
		quotaStore,
		&fakeAdmitter{session: sess},
		notify.NoopMailer{},
	)
	return ctrl, recording, answers
}

func baseSession(survey models.Survey) models.Session {
	return models.Session{
		TenantID: survey.TenantID, SurveyID: survey.SurveyID, SessionID: "sess1",
		Status: models.SessionInProgress, StartedAt: time.Now(), LastActivityAt: time.Now(),
		CurrentPageID: "p1",
	}
}

// --- tests -----------------------------------------------------------------

func TestSubmitAnswersRequiredViolationBlocksAdvance(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	ctrl, _, _ := newController(survey, sess)

	_, err := ctrl.SubmitAnswers(context.Background(), "sess1", "p1", nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSubmitAnswersHappyPathAdvancesThenCompletes(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	ctrl, recording, _ := newController(survey, sess)

	ctx := context.Background()
	res, err := ctrl.SubmitAnswers(ctx, "sess1", "p1", []models.Answer{
		{SessionID: "sess1", QuestionID: "q1", PageID: "p1", Value: models.AnswerValue{TextValue: "x"}, AnsweredAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, "p2", res.NextPageID)

	res, err = ctrl.SubmitAnswers(ctx, "sess1", "p2", nil)
	require.NoError(t, err)
	assert.Equal(t, "p3", res.NextPageID)

	res, err = ctrl.SubmitAnswers(ctx, "sess1", "p3", nil)
	require.NoError(t, err)
	assert.True(t, res.Complete)

	final, err := recording.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, final.Status)
}

func TestSubmitAnswersTerminateByAnswer(t *testing.T) {
	survey := threePageSurvey()
	survey.Expressions = []models.Expression{{ExpressionID: "e1", Source: `equals(answer(Q1),'No')`}}
	survey.Pages[0].Questions[0].TerminateIfExpressionID = "e1"
	sess := baseSession(survey)
	ctrl, recording, _ := newController(survey, sess)

	ctx := context.Background()
	res, err := ctrl.SubmitAnswers(ctx, "sess1", "p1", []models.Answer{
		{SessionID: "sess1", QuestionID: "q1", PageID: "p1", Value: models.AnswerValue{TextValue: "No"}, AnsweredAt: time.Now()},
	})
	require.NoError(t, err)
	assert.True(t, res.Terminated)

	final, err := recording.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionTerminated, final.Status)
}

func TestSubmitAnswersOverquotaTerminates(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	plan := models.QuotaPlan{
		PlanID: "plan1", SurveyID: survey.SurveyID, State: models.QuotaPlanOpen,
		Buckets: []models.QuotaBucket{
			{BucketID: "b1", PlanID: "plan1", AddressMode: models.BucketAddressOption, QuestionID: "q1", OptionValue: "A", TargetN: 1, FilledN: 1},
		},
	}
	ctrl, recording, _ := newController(survey, sess, plan)

	ctx := context.Background()
	_, err := ctrl.SubmitAnswers(ctx, "sess1", "p1", []models.Answer{
		{SessionID: "sess1", QuestionID: "q1", PageID: "p1", Value: models.AnswerValue{Choices: []string{"A"}}, AnsweredAt: time.Now()},
	})
	require.ErrorIs(t, err, ErrOverquota)

	final, err := recording.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionTerminated, final.Status)
	assert.Equal(t, "OVERQUOTA", final.TerminationReason)
}

func TestCompleteRequiresInProgress(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	sess.Status = models.SessionCompleted
	ctrl, _, _ := newController(survey, sess)

	_, err := ctrl.Complete(context.Background(), "sess1")
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestTerminateTransitionsSession(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	ctrl, recording, _ := newController(survey, sess)

	ctx := context.Background()
	require.NoError(t, ctrl.Terminate(ctx, "sess1", "user_abort"))

	final, err := recording.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionTerminated, final.Status)
	assert.Equal(t, "user_abort", final.TerminationReason)
}

func TestStartIncrementsLandingCounterWhenAttached(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	sess.CollectorID = "c1"
	ctrl, _, _ := newController(survey, sess)

	counter := cache.New(time.Hour)
	ctrl.SetLandingCounter(counter)

	_, err := ctrl.Start(context.Background(), admission.Request{Slug: "acme"})
	require.NoError(t, err)

	n := counter.Increment("landing:c1")
	assert.Equal(t, 2, n)
}

func TestStartWithoutLandingCounterDoesNotPanic(t *testing.T) {
	survey := threePageSurvey()
	sess := baseSession(survey)
	ctrl, _, _ := newController(survey, sess)

	_, err := ctrl.Start(context.Background(), admission.Request{Slug: "acme"})
	require.NoError(t, err)
}
