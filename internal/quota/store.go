package quota

import (
	"context"
	"time"

	"github.com/surveyrt/runtime/internal/models"
)

// Store is the persistence boundary the quota manager drives. Each
// mutating method runs as one transaction of its own (spec.md §4.5); no
// caller transaction is passed in — the concrete implementation lives in
// internal/store.
type Store interface {
	// LoadOpenPlans returns every OPEN quota plan (with its buckets) for a survey.
	LoadOpenPlans(ctx context.Context, surveyID string) ([]models.QuotaPlan, error)
	// ReserveBucket atomically runs
	// `UPDATE ... SET reservedN = reservedN + 1 WHERE reservedN + filledN < targetN + maxOverfill`;
	// if the row matched, it persists res and inserts event in the same
	// transaction (spec.md §6's quota.reserved topic), and reports true.
	ReserveBucket(ctx context.Context, bucketID string, res models.QuotaReservation, event models.OutboxEvent) (bool, error)
	// FinalizeActiveReservations marks every ACTIVE reservation for a
	// session FINALIZED, decrementing reservedN and incrementing filledN
	// on each reservation's bucket, and inserts event (quota.finalized) in
	// the same transaction if any reservation transitioned.
	FinalizeActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error
	// ReleaseActiveReservations marks every ACTIVE reservation for a
	// session RELEASED, decrementing reservedN on each bucket, and
	// inserts event (quota.released) in the same transaction if any
	// reservation transitioned.
	ReleaseActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error
	// ReleaseExpiredReservations releases every ACTIVE reservation whose
	// expiresAt is before now, and reports how many were released.
	ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error)
	// CountCompletedSessions counts COMPLETED sessions for a survey.
	CountCompletedSessions(ctx context.Context, surveyID string) (int, error)
}
