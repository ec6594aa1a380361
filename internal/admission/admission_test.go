package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyrt/runtime/internal/geoip"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/store"
)

type fakeCollectors struct {
	byslug map[string]models.Collector
	counts map[string]int
}

func (f *fakeCollectors) GetBySlug(ctx context.Context, slug string) (models.Collector, error) {
	c, ok := f.byslug[slug]
	if !ok {
		return models.Collector{}, store.ErrNotFound
	}
	return c, nil
}
func (f *fakeCollectors) CountSessions(ctx context.Context, collectorID string) (int, error) {
	return f.counts[collectorID], nil
}

type fakeInvites struct {
	byToken map[string]models.Invite
	consumed map[string]bool
}

func (f *fakeInvites) GetByToken(ctx context.Context, token string) (models.Invite, error) {
	inv, ok := f.byToken[token]
	if !ok {
		return models.Invite{}, store.ErrNotFound
	}
	if f.consumed[inv.InviteID] {
		inv.ConsumedAt = &time.Time{}
	}
	return inv, nil
}
func (f *fakeInvites) Consume(ctx context.Context, inviteID string) (bool, error) {
	if f.consumed[inviteID] {
		return false, nil
	}
	f.consumed[inviteID] = true
	return true, nil
}

type fakeSurveys struct{ survey models.Survey }

func (f *fakeSurveys) GetPublished(ctx context.Context, surveyID string) (models.Survey, error) {
	return f.survey, nil
}

type fakeSessions struct {
	bySessionHash map[string]models.Session
	created       []models.Session
}

func (f *fakeSessions) FindActiveByRespondentHash(ctx context.Context, surveyID, hash string) (models.Session, error) {
	sess, ok := f.bySessionHash[hash]
	if !ok {
		return models.Session{}, store.ErrNotFound
	}
	return sess, nil
}
func (f *fakeSessions) Create(ctx context.Context, sess models.Session) error {
	f.created = append(f.created, sess)
	return nil
}

func newService(collector models.Collector, survey models.Survey) (*Service, *fakeSessions) {
	collectors := &fakeCollectors{byslug: map[string]models.Collector{collector.Slug: collector}, counts: map[string]int{}}
	invites := &fakeInvites{byToken: map[string]models.Invite{}, consumed: map[string]bool{}}
	surveys := &fakeSurveys{survey: survey}
	sessions := &fakeSessions{bySessionHash: map[string]models.Session{}}
	return NewService(collectors, invites, surveys, sessions, geoip.NoopProvider{}), sessions
}

func TestAdmitCreatesNewSession(t *testing.T) {
	collector := models.Collector{CollectorID: "c1", SurveyID: "s1", Slug: "my-survey", Type: models.CollectorPublic}
	survey := models.Survey{TenantID: "t1", SurveyID: "s1"}
	svc, sessions := newService(collector, survey)

	result, err := svc.Admit(context.Background(), Request{Slug: "my-survey", Now: time.Now(), Device: "dev1", IP: "1.1.1.1"}, func() string { return "new-sess" })
	require.NoError(t, err)
	assert.False(t, result.Resumed)
	assert.Equal(t, "new-sess", result.Session.SessionID)
	assert.Len(t, sessions.created, 1)
}

func TestAdmitUnknownSlug(t *testing.T) {
	collector := models.Collector{CollectorID: "c1", SurveyID: "s1", Slug: "my-survey"}
	svc, _ := newService(collector, models.Survey{})

	_, err := svc.Admit(context.Background(), Request{Slug: "nope"}, func() string { return "x" })
	assert.ErrorIs(t, err, ErrCollectorNotFound)
}

func TestAdmitBlockedByPassword(t *testing.T) {
	collector := models.Collector{CollectorID: "c1", SurveyID: "s1", Slug: "my-survey", Type: models.CollectorPublic}
	survey := models.Survey{TenantID: "t1", SurveyID: "s1", Settings: models.SurveySettings{PasswordRequired: true, Password: "secret"}}
	svc, _ := newService(collector, survey)

	_, err := svc.Admit(context.Background(), Request{Slug: "my-survey", PasswordAttempt: "wrong", Now: time.Now()}, func() string { return "x" })
	assert.Error(t, err)
}

func TestAdmitClosedCollectorWindow(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	collector := models.Collector{CollectorID: "c1", SurveyID: "s1", Slug: "my-survey", Type: models.CollectorPublic, CloseAt: &past}
	svc, _ := newService(collector, models.Survey{})

	_, err := svc.Admit(context.Background(), Request{Slug: "my-survey", Now: time.Now()}, func() string { return "x" })
	assert.ErrorIs(t, err, ErrCollectorClosed)
}

func TestAdmitRequiresInviteForSingleUseCollector(t *testing.T) {
	collector := models.Collector{CollectorID: "c1", SurveyID: "s1", Slug: "invite-only", Type: models.CollectorSingleUse}
	svc, _ := newService(collector, models.Survey{})

	_, err := svc.Admit(context.Background(), Request{Slug: "invite-only", Now: time.Now()}, func() string { return "x" })
	assert.ErrorIs(t, err, ErrInviteInvalid)
}
