// Package bus is the narrow boundary to the downstream event bus named in
// spec.md §1 as an external collaborator: the runtime core only needs to
// hand off a published OutboxEvent, never how it gets there.
package bus

import (
	"context"
	"log/slog"

	"github.com/surveyrt/runtime/internal/models"
)

// Publisher hands a finalized event to whatever transport sits downstream
// (a message broker, a webhook, PostgreSQL NOTIFY — the runtime core
// never assumes which).
type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// LogPublisher is the in-process default: it logs the event and returns
// nil. Suitable for local development and for deployments where the
// outbox relay itself is the only consumer of interest.
type LogPublisher struct {
	Logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{Logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	p.Logger.Info("event published",
		"type", event.Type, "session_id", event.SessionID, "survey_id", event.SurveyID, "event_id", event.EventID)
	return nil
}
