package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/resolve"
)

// fakeStore is an in-memory Store for unit-testing bucket-matching and
// reservation bookkeeping without a real Postgres instance.
type fakeStore struct {
	plans        []models.QuotaPlan
	reservations map[string]models.QuotaReservation
	completed    int
	events       []models.OutboxEvent
}

func newFakeStore(plans []models.QuotaPlan) *fakeStore {
	return &fakeStore{plans: plans, reservations: map[string]models.QuotaReservation{}}
}

func (f *fakeStore) bucket(id string) *models.QuotaBucket {
	for pi := range f.plans {
		for bi := range f.plans[pi].Buckets {
			if f.plans[pi].Buckets[bi].BucketID == id {
				return &f.plans[pi].Buckets[bi]
			}
		}
	}
	return nil
}

func (f *fakeStore) LoadOpenPlans(ctx context.Context, surveyID string) ([]models.QuotaPlan, error) {
	var out []models.QuotaPlan
	for _, p := range f.plans {
		if p.State == models.QuotaPlanOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ReserveBucket(ctx context.Context, bucketID string, res models.QuotaReservation, event models.OutboxEvent) (bool, error) {
	b := f.bucket(bucketID)
	if b == nil {
		return false, nil
	}
	if b.FilledN+b.ReservedN >= b.TargetN+b.MaxOverfill {
		return false, nil
	}
	b.ReservedN++
	f.reservations[res.ReservationID] = res
	f.events = append(f.events, event)
	return true, nil
}

func (f *fakeStore) FinalizeActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	transitioned := false
	for id, r := range f.reservations {
		if r.SessionID == sessionID && r.Status == models.ReservationActive {
			r.Status = models.ReservationFinalized
			f.reservations[id] = r
			if b := f.bucket(r.BucketID); b != nil {
				b.ReservedN--
				b.FilledN++
			}
			transitioned = true
		}
	}
	if transitioned {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeStore) ReleaseActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	transitioned := false
	for id, r := range f.reservations {
		if r.SessionID == sessionID && r.Status == models.ReservationActive {
			r.Status = models.ReservationReleased
			f.reservations[id] = r
			if b := f.bucket(r.BucketID); b != nil {
				b.ReservedN--
			}
			transitioned = true
		}
	}
	if transitioned {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeStore) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	n := 0
	for id, r := range f.reservations {
		if r.Status == models.ReservationActive && r.ExpiresAt.Before(now) {
			r.Status = models.ReservationReleased
			f.reservations[id] = r
			if b := f.bucket(r.BucketID); b != nil {
				b.ReservedN--
			}
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountCompletedSessions(ctx context.Context, surveyID string) (int, error) {
	return f.completed, nil
}

func optionPlan() []models.QuotaPlan {
	return []models.QuotaPlan{
		{
			PlanID:   "plan1",
			SurveyID: "s1",
			State:    models.QuotaPlanOpen,
			Buckets: []models.QuotaBucket{
				{BucketID: "b-male", PlanID: "plan1", AddressMode: models.BucketAddressOption, QuestionID: "q-gender", OptionValue: "male", TargetN: 1},
				{BucketID: "b-female", PlanID: "plan1", AddressMode: models.BucketAddressOption, QuestionID: "q-gender", OptionValue: "female", TargetN: 1},
			},
		},
	}
}

func sessionFor(sessionID string) models.Session {
	return models.Session{TenantID: "t1", SurveyID: "s1", SessionID: sessionID}
}

func TestCheckQuotaProceedsWhenNoBucketMatches(t *testing.T) {
	store := newFakeStore(optionPlan())
	m := New(store, resolve.Index{})
	ok, err := m.CheckQuota(context.Background(), "s1", map[string]models.AnswerValue{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReserveQuotaAtMostOneBucket(t *testing.T) {
	store := newFakeStore(optionPlan())
	m := New(store, resolve.Index{})
	answers := map[string]models.AnswerValue{"q-gender": {Choices: []string{"male"}}}

	res, err := m.ReserveQuota(context.Background(), sessionFor("sess-1"), answers)
	require.NoError(t, err)
	assert.True(t, res.Reserved)
	assert.Equal(t, "b-male", res.BucketID)
	assert.Equal(t, 1, store.bucket("b-male").ReservedN)
	require.Len(t, store.events, 1)
	assert.Equal(t, models.EventQuotaReserved, store.events[0].Type)

	// Bucket is now saturated (target 1, reserved 1, no overfill).
	res2, err := m.ReserveQuota(context.Background(), sessionFor("sess-2"), answers)
	require.NoError(t, err)
	assert.False(t, res2.Reserved)
}

func TestFinalizeAndReleaseAreSymmetric(t *testing.T) {
	store := newFakeStore(optionPlan())
	m := New(store, resolve.Index{})
	answers := map[string]models.AnswerValue{"q-gender": {Choices: []string{"female"}}}

	res, err := m.ReserveQuota(context.Background(), sessionFor("sess-1"), answers)
	require.NoError(t, err)
	require.True(t, res.Reserved)
	assert.Equal(t, 1, store.bucket("b-female").ReservedN)
	assert.Equal(t, 0, store.bucket("b-female").FilledN)

	require.NoError(t, m.FinalizeQuota(context.Background(), sessionFor("sess-1")))
	assert.Equal(t, 0, store.bucket("b-female").ReservedN)
	assert.Equal(t, 1, store.bucket("b-female").FilledN)
	require.Len(t, store.events, 2)
	assert.Equal(t, models.EventQuotaFinalized, store.events[1].Type)
}

func TestReleaseQuotaDecrementsReserved(t *testing.T) {
	store := newFakeStore(optionPlan())
	m := New(store, resolve.Index{})
	answers := map[string]models.AnswerValue{"q-gender": {Choices: []string{"male"}}}

	res, err := m.ReserveQuota(context.Background(), sessionFor("sess-1"), answers)
	require.NoError(t, err)
	require.True(t, res.Reserved)

	require.NoError(t, m.ReleaseQuota(context.Background(), sessionFor("sess-1")))
	assert.Equal(t, 0, store.bucket("b-male").ReservedN)
	assert.Equal(t, 0, store.bucket("b-male").FilledN)
	require.Len(t, store.events, 2)
	assert.Equal(t, models.EventQuotaReleased, store.events[1].Type)
}

func TestShouldCloseSurveyOnHardTarget(t *testing.T) {
	store := newFakeStore(optionPlan())
	store.completed = 5
	m := New(store, resolve.Index{})
	close, err := m.ShouldCloseSurvey(context.Background(), models.Survey{SurveyID: "s1", HardCloseTarget: 5})
	require.NoError(t, err)
	assert.True(t, close)
}

func TestShouldCloseSurveyWhenAllBucketsSaturated(t *testing.T) {
	plans := optionPlan()
	plans[0].Buckets[0].FilledN = 1
	plans[0].Buckets[1].FilledN = 1
	store := newFakeStore(plans)
	m := New(store, resolve.Index{})
	close, err := m.ShouldCloseSurvey(context.Background(), models.Survey{SurveyID: "s1"})
	require.NoError(t, err)
	assert.True(t, close)
}

func TestCleanupExpiredReservations(t *testing.T) {
	store := newFakeStore(optionPlan())
	m := New(store, resolve.Index{})
	m.now = func() time.Time { return time.Now() }

	answers := map[string]models.AnswerValue{"q-gender": {Choices: []string{"male"}}}
	res, err := m.ReserveQuota(context.Background(), sessionFor("sess-1"), answers)
	require.NoError(t, err)
	require.True(t, res.Reserved)

	// Force the reservation into the past to simulate expiry.
	for id, r := range store.reservations {
		r.ExpiresAt = time.Now().Add(-time.Minute)
		store.reservations[id] = r
	}

	n, err := m.CleanupExpiredReservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.bucket("b-male").ReservedN)
}

func TestFinalizeQuotaWithNoReservationsEmitsNoEvent(t *testing.T) {
	store := newFakeStore(optionPlan())
	m := New(store, resolve.Index{})

	require.NoError(t, m.FinalizeQuota(context.Background(), sessionFor("sess-never-reserved")))
	assert.Empty(t, store.events)
}
