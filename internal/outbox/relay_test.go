package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyrt/runtime/internal/models"
)

type fakeStore struct {
	mu          sync.Mutex
	pending     []models.OutboxEvent
	published   []int64
	failedCount int
}

func (f *fakeStore) LoadUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return append([]models.OutboxEvent{}, f.pending[:limit]...), nil
	}
	return append([]models.OutboxEvent{}, f.pending...), nil
}

func (f *fakeStore) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	f.pending = removeByID(f.pending, id)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCount++
	return nil
}

func removeByID(events []models.OutboxEvent, id int64) []models.OutboxEvent {
	out := events[:0]
	for _, e := range events {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.OutboxEvent
	fail      bool
}

func (p *fakePublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return assert.AnError
	}
	p.published = append(p.published, event)
	return nil
}

func TestRelayPublishesAndMarksEvents(t *testing.T) {
	store := &fakeStore{pending: []models.OutboxEvent{
		{ID: 1, EventID: "e1", Type: models.EventSessionStarted},
		{ID: 2, EventID: "e2", Type: models.EventSessionCompleted},
	}}
	publisher := &fakePublisher{}
	relay := NewRelay(store, publisher, nil, 10*time.Millisecond, 10)

	relay.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	relay.Stop()

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Len(t, publisher.published, 2)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.pending)
	assert.ElementsMatch(t, []int64{1, 2}, store.published)
}

func TestRelayMarksFailedOnPublishError(t *testing.T) {
	store := &fakeStore{pending: []models.OutboxEvent{{ID: 1, EventID: "e1"}}}
	publisher := &fakePublisher{fail: true}
	relay := NewRelay(store, publisher, nil, 10*time.Millisecond, 10)

	relay.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	relay.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Greater(t, store.failedCount, 0)
	assert.Empty(t, store.published)
}

func TestRelayStartIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	relay := NewRelay(store, &fakePublisher{}, nil, time.Second, 10)

	relay.Start(context.Background())
	relay.Start(context.Background()) // no-op, logs a warning
	relay.Stop()

	require.True(t, relay.started.Load())
}
