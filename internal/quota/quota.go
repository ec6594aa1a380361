// Package quota implements the atomic reserve/finalize/release bucket
// accounting described in spec.md §4.5. Every mutating operation is a
// conditional UPDATE against the bucket counters, so the invariant
// `0 <= reservedN` and `reservedN + filledN <= targetN + maxOverfill`
// holds without pessimistic locking — the same shape as
// pkg/queue/worker.go's claimNextSession conditional claim.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/surveyrt/runtime/internal/expr"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/resolve"
)

const reservationTTL = 30 * time.Minute

// Manager evaluates bucket addressing rules and drives Store's atomic
// primitives. It holds no counters itself — those live in Postgres.
type Manager struct {
	store Store
	idx   resolve.Index
	now   func() time.Time
}

func New(store Store, idx resolve.Index) *Manager {
	return &Manager{store: store, idx: idx, now: time.Now}
}

// CheckQuota reports whether a session may proceed given its current
// answers: true if no bucket addresses it, or if at least one addressed
// bucket still has room.
func (m *Manager) CheckQuota(ctx context.Context, surveyID string, answers map[string]models.AnswerValue) (bool, error) {
	matched, err := m.matchedBuckets(ctx, surveyID, answers)
	if err != nil {
		return false, err
	}
	if len(matched) == 0 {
		return true, nil
	}
	for _, b := range matched {
		if !b.Saturated() {
			return true, nil
		}
	}
	return false, nil
}

// ReserveResult reports the outcome of ReserveQuota.
type ReserveResult struct {
	Reserved bool
	BucketID string
}

// ReserveQuota atomically claims the first matching bucket (in evaluation
// order) with remaining room, and records a reservation expiring in 30
// minutes. At most one reservation is created per call. If no bucket
// addresses the session at all, it reports Reserved=true with no bucket —
// there is nothing to constrain this session. A successful claim emits a
// quota.reserved outbox event (spec.md §6) in the same transaction as the
// counter and reservation write.
func (m *Manager) ReserveQuota(ctx context.Context, sess models.Session, answers map[string]models.AnswerValue) (ReserveResult, error) {
	matched, err := m.matchedBuckets(ctx, sess.SurveyID, answers)
	if err != nil {
		return ReserveResult{}, err
	}
	if len(matched) == 0 {
		return ReserveResult{Reserved: true}, nil
	}

	for _, b := range matched {
		now := m.now()
		res := models.QuotaReservation{
			ReservationID: uuid.NewString(),
			SessionID:     sess.SessionID,
			BucketID:      b.BucketID,
			Status:        models.ReservationActive,
			ReservedAt:    now,
			ExpiresAt:     now.Add(reservationTTL),
		}
		ev := quotaEvent(models.EventQuotaReserved, sess, b.BucketID)
		ok, err := m.store.ReserveBucket(ctx, b.BucketID, res, ev)
		if err != nil {
			return ReserveResult{}, err
		}
		if !ok {
			continue
		}
		return ReserveResult{Reserved: true, BucketID: b.BucketID}, nil
	}
	return ReserveResult{Reserved: false}, nil
}

// FinalizeQuota marks every ACTIVE reservation for a session FINALIZED,
// emitting a quota.finalized outbox event alongside the transition.
func (m *Manager) FinalizeQuota(ctx context.Context, sess models.Session) error {
	return m.store.FinalizeActiveReservations(ctx, sess.SessionID, quotaEvent(models.EventQuotaFinalized, sess, ""))
}

// ReleaseQuota marks every ACTIVE reservation for a session RELEASED,
// emitting a quota.released outbox event alongside the transition.
func (m *Manager) ReleaseQuota(ctx context.Context, sess models.Session) error {
	return m.store.ReleaseActiveReservations(ctx, sess.SessionID, quotaEvent(models.EventQuotaReleased, sess, ""))
}

// quotaEvent builds the outbox row for a reserve/finalize/release
// transition. bucketID is empty for finalize/release, which apply across
// every active reservation rather than addressing one bucket.
func quotaEvent(t models.EventType, sess models.Session, bucketID string) models.OutboxEvent {
	var payload map[string]any
	if bucketID != "" {
		payload = map[string]any{"bucketId": bucketID}
	}
	return models.OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      t,
		TenantID:  sess.TenantID,
		SurveyID:  sess.SurveyID,
		SessionID: sess.SessionID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// CleanupExpiredReservations sweeps ACTIVE reservations past expiresAt.
// Idempotent; safe to call from multiple processes.
func (m *Manager) CleanupExpiredReservations(ctx context.Context) (int, error) {
	return m.store.ReleaseExpiredReservations(ctx, m.now())
}

// ShouldCloseSurvey reports whether the survey has hit its hard-close
// target or every bucket in every OPEN plan is saturated.
func (m *Manager) ShouldCloseSurvey(ctx context.Context, survey models.Survey) (bool, error) {
	if survey.HardCloseTarget > 0 {
		completed, err := m.store.CountCompletedSessions(ctx, survey.SurveyID)
		if err != nil {
			return false, err
		}
		if completed >= survey.HardCloseTarget {
			return true, nil
		}
	}

	plans, err := m.store.LoadOpenPlans(ctx, survey.SurveyID)
	if err != nil {
		return false, err
	}
	if len(plans) == 0 {
		return false, nil
	}
	for _, p := range plans {
		for _, b := range p.Buckets {
			if !b.Saturated() {
				return false, nil
			}
		}
	}
	return true, nil
}

// matchedBuckets evaluates every OPEN plan's buckets' addressing rules
// against the session's answers (spec.md §4.5): a condition expression,
// else a (questionId, optionValue) match, else catch-all.
func (m *Manager) matchedBuckets(ctx context.Context, surveyID string, answers map[string]models.AnswerValue) ([]models.QuotaBucket, error) {
	plans, err := m.store.LoadOpenPlans(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	ectx := expr.Context{Answers: answers, QuestionIDMap: m.idx.VariableMap}

	var out []models.QuotaBucket
	for _, p := range plans {
		for _, b := range p.Buckets {
			if bucketMatches(b, answers, ectx, m.idx.Expressions) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func bucketMatches(b models.QuotaBucket, answers map[string]models.AnswerValue, ectx expr.Context, expressions map[string]string) bool {
	switch b.AddressMode {
	case models.BucketAddressCondition:
		src, ok := expressions[b.ConditionExprID]
		if !ok {
			return false
		}
		return expr.Evaluate(src, ectx)
	case models.BucketAddressOption:
		for _, c := range answers[b.QuestionID].Choices {
			if c == b.OptionValue {
				return true
			}
		}
		return false
	default: // CATCH_ALL
		return true
	}
}
