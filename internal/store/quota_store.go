package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/surveyrt/runtime/internal/models"
)

// QuotaStore implements quota.Store over Postgres. ReserveBucket,
// FinalizeActiveReservations, and ReleaseActiveReservations each run as a
// single atomic statement (or a short transaction wrapping a bucket-id
// fan-out) so a concurrent submit on the same bucket can't double-book it.
type QuotaStore struct {
	db *sql.DB
}

func NewQuotaStore(c *Client) *QuotaStore {
	return &QuotaStore{db: c.db}
}

func (s *QuotaStore) LoadOpenPlans(ctx context.Context, surveyID string) ([]models.QuotaPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plan_id, state FROM quota_plans WHERE survey_id = $1 AND state = $2`,
		surveyID, models.QuotaPlanOpen)
	if err != nil {
		return nil, fmt.Errorf("load open plans: %w", err)
	}
	defer rows.Close()

	var plans []models.QuotaPlan
	for rows.Next() {
		var p models.QuotaPlan
		if err := rows.Scan(&p.PlanID, &p.State); err != nil {
			return nil, fmt.Errorf("scan quota plan: %w", err)
		}
		p.SurveyID = surveyID
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range plans {
		buckets, err := s.loadBuckets(ctx, plans[i].PlanID)
		if err != nil {
			return nil, err
		}
		plans[i].Buckets = buckets
	}
	return plans, nil
}

func (s *QuotaStore) loadBuckets(ctx context.Context, planID string) ([]models.QuotaBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket_id, plan_id, address_mode, question_id, option_value,
		       condition_expr_id, target_n, filled_n, reserved_n, max_overfill
		FROM quota_buckets WHERE plan_id = $1`, planID)
	if err != nil {
		return nil, fmt.Errorf("load quota buckets: %w", err)
	}
	defer rows.Close()

	var buckets []models.QuotaBucket
	for rows.Next() {
		var b models.QuotaBucket
		if err := rows.Scan(&b.BucketID, &b.PlanID, &b.AddressMode, &b.QuestionID, &b.OptionValue,
			&b.ConditionExprID, &b.TargetN, &b.FilledN, &b.ReservedN, &b.MaxOverfill); err != nil {
			return nil, fmt.Errorf("scan quota bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// ReserveBucket runs the conditional claim and, only if it succeeded,
// persists the reservation and the quota.reserved event in the same
// transaction — a partial reserve with no event (or vice versa) would
// desynchronize the bus from the counters.
func (s *QuotaStore) ReserveBucket(ctx context.Context, bucketID string, res models.QuotaReservation, event models.OutboxEvent) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin reserve bucket: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE quota_buckets SET reserved_n = reserved_n + 1
		WHERE bucket_id = $1 AND reserved_n + filled_n < target_n + max_overfill`,
		bucketID)
	if err != nil {
		return false, fmt.Errorf("reserve bucket: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve bucket rows affected: %w", err)
	}
	if n != 1 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quota_reservations (reservation_id, session_id, bucket_id, status, reserved_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		res.ReservationID, res.SessionID, res.BucketID, res.Status, res.ReservedAt, res.ExpiresAt); err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}

	if err := Insert(ctx, tx, event); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reserve bucket: %w", err)
	}
	return true, nil
}

func (s *QuotaStore) FinalizeActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	return s.transitionActiveReservations(ctx, sessionID, models.ReservationFinalized,
		`UPDATE quota_buckets SET reserved_n = reserved_n - 1, filled_n = filled_n + 1 WHERE bucket_id = $1`, event)
}

func (s *QuotaStore) ReleaseActiveReservations(ctx context.Context, sessionID string, event models.OutboxEvent) error {
	return s.transitionActiveReservations(ctx, sessionID, models.ReservationReleased,
		`UPDATE quota_buckets SET reserved_n = reserved_n - 1 WHERE bucket_id = $1`, event)
}

// transitionActiveReservations moves every ACTIVE reservation for a
// session to newStatus and applies bucketUpdateSQL to each one's bucket.
// It inserts event only if at least one reservation actually transitioned
// — a session quota never touched shouldn't emit a finalize/release event.
func (s *QuotaStore) transitionActiveReservations(ctx context.Context, sessionID string, newStatus models.ReservationStatus, bucketUpdateSQL string, event models.OutboxEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation transition: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT reservation_id, bucket_id FROM quota_reservations WHERE session_id = $1 AND status = $2`,
		sessionID, models.ReservationActive)
	if err != nil {
		return fmt.Errorf("load active reservations: %w", err)
	}
	type pair struct{ reservationID, bucketID string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.reservationID, &p.bucketID); err != nil {
			rows.Close()
			return fmt.Errorf("scan active reservation: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE quota_reservations SET status = $1 WHERE reservation_id = $2`,
			newStatus, p.reservationID,
		); err != nil {
			return fmt.Errorf("transition reservation %s: %w", p.reservationID, err)
		}
		if _, err := tx.ExecContext(ctx, bucketUpdateSQL, p.bucketID); err != nil {
			return fmt.Errorf("update bucket %s: %w", p.bucketID, err)
		}
	}

	if len(pairs) > 0 {
		if err := Insert(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *QuotaStore) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expiry sweep: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT reservation_id, bucket_id FROM quota_reservations
		WHERE status = $1 AND expires_at < $2`, models.ReservationActive, now)
	if err != nil {
		return 0, fmt.Errorf("load expired reservations: %w", err)
	}
	var ids, buckets []string
	for rows.Next() {
		var id, bucket string
		if err := rows.Scan(&id, &bucket); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired reservation: %w", err)
		}
		ids = append(ids, id)
		buckets = append(buckets, bucket)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE quota_reservations SET status = $1 WHERE reservation_id = $2`,
			models.ReservationReleased, id,
		); err != nil {
			return 0, fmt.Errorf("release expired reservation %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE quota_buckets SET reserved_n = reserved_n - 1 WHERE bucket_id = $1`, buckets[i],
		); err != nil {
			return 0, fmt.Errorf("update bucket %s: %w", buckets[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expiry sweep: %w", err)
	}
	return len(ids), nil
}

func (s *QuotaStore) CountCompletedSessions(ctx context.Context, surveyID string) (int, error) {
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
