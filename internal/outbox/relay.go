// Package outbox is the write-ahead relay of spec.md §4.9: state changes
// insert an OutboxEvent in the same transaction that changes the state
// (internal/store.Insert), and a background Relay polls for unpublished
// rows and hands them to a bus.Publisher. Grounded on the poll-loop shape
// of other_examples's ashita-ai-akashi OutboxWorker (atomic started
// guard, cancel-and-drain shutdown), with the persist side grounded on
// pkg/events/publisher.go's persistAndNotify split between "write in the
// caller's transaction" and "relay asynchronously".
package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surveyrt/runtime/internal/bus"
	"github.com/surveyrt/runtime/internal/models"
)

// Store is the narrow slice of internal/store.OutboxStore the relay
// needs, kept as an interface so the poll loop can be tested without a
// live database.
type Store interface {
	LoadUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

type Relay struct {
	store        Store
	publisher    bus.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

func NewRelay(s Store, publisher bus.Publisher, logger *slog.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{
		store: s, publisher: publisher, logger: logger,
		pollInterval: pollInterval, batchSize: batchSize,
		done: make(chan struct{}),
	}
}

// Start begins the background poll loop. Safe to call only once.
func (r *Relay) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		r.logger.Warn("outbox relay: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancelLoop = cancel
	go r.run(loopCtx)
}

// Stop cancels the poll loop and blocks until its final pass finishes.
func (r *Relay) Stop() {
	if r.cancelLoop != nil {
		r.cancelLoop()
	}
	<-r.done
}

func (r *Relay) run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.once.Do(func() { close(r.done) })
			return
		case <-ticker.C:
			r.drain()
		}
	}
}

func (r *Relay) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, err := r.store.LoadUnpublished(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("outbox relay: load unpublished failed", "error", err)
		return
	}

	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			r.logger.Warn("outbox relay: publish failed, will retry", "event_id", ev.EventID, "error", err)
			if markErr := r.store.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
				r.logger.Error("outbox relay: mark failed failed", "error", markErr)
			}
			continue
		}
		if err := r.store.MarkPublished(ctx, ev.ID, time.Now()); err != nil {
			r.logger.Error("outbox relay: mark published failed", "event_id", ev.EventID, "error", err)
		}
	}
}
