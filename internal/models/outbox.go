package models

import "time"

// EventType enumerates the event-bus topics of spec.md §6.
type EventType string

const (
	EventSessionStarted    EventType = "session.started"
	EventSessionCompleted  EventType = "session.completed"
	EventSessionTerminated EventType = "session.terminated"
	EventAnswerUpserted    EventType = "answer.upserted"
	EventQuotaReserved     EventType = "quota.reserved"
	EventQuotaReleased     EventType = "quota.released"
	EventQuotaFinalized    EventType = "quota.finalized"
)

// OutboxEvent is a pending domain event written in the same transaction as
// the state change it describes (spec.md §3, §4.9).
type OutboxEvent struct {
	ID          int64
	EventID     string
	Type        EventType
	TenantID    string
	SurveyID    string
	SessionID   string
	Payload     map[string]any
	CreatedAt   time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   string
}
