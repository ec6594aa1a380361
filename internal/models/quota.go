package models

import "time"

// QuotaPlanState gates whether a plan's buckets are still being checked.
type QuotaPlanState string

const (
	QuotaPlanOpen   QuotaPlanState = "OPEN"
	QuotaPlanClosed QuotaPlanState = "CLOSED"
)

// QuotaPlan enumerates a set of mutually-addressable buckets for a survey.
type QuotaPlan struct {
	PlanID   string
	SurveyID string
	State    QuotaPlanState
	Buckets  []QuotaBucket
}

// BucketAddressMode says how a bucket decides whether a session's answers match it.
type BucketAddressMode string

const (
	BucketAddressOption    BucketAddressMode = "OPTION"    // (questionId, optionValue)
	BucketAddressCondition BucketAddressMode = "CONDITION" // expression
	BucketAddressCatchAll  BucketAddressMode = "CATCH_ALL"
)

// QuotaBucket is a counter with a target cap.
type QuotaBucket struct {
	BucketID     string
	PlanID       string
	AddressMode  BucketAddressMode
	QuestionID   string // when AddressMode == BucketAddressOption
	OptionValue  string // when AddressMode == BucketAddressOption
	ConditionExprID string // when AddressMode == BucketAddressCondition
	TargetN      int
	FilledN      int
	ReservedN    int
	MaxOverfill  int
}

// Saturated reports whether the bucket has no remaining capacity.
func (b QuotaBucket) Saturated() bool {
	return b.FilledN+b.ReservedN >= b.TargetN+b.MaxOverfill
}

// ReservationStatus is the lifecycle of a QuotaReservation.
type ReservationStatus string

const (
	ReservationActive     ReservationStatus = "ACTIVE"
	ReservationFinalized  ReservationStatus = "FINALIZED"
	ReservationReleased   ReservationStatus = "RELEASED"
)

// QuotaReservation ties a session to a bucket for the duration of the
// 30-minute reservation window (spec.md §4.5).
type QuotaReservation struct {
	ReservationID string
	SessionID     string
	BucketID      string
	Status        ReservationStatus
	ReservedAt    time.Time
	ExpiresAt     time.Time
}
