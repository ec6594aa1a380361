package quota

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically releases ACTIVE reservations past their 30-minute
// expiry (spec.md §4.5 cleanupExpiredReservations). Shape mirrors
// pkg/cleanup/service.go's ticker-driven Start/Stop.
type Sweeper struct {
	manager  *Manager
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{manager: manager, interval: interval}
}

// Start launches the background sweep loop. A no-op if already running.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("quota reservation sweeper started", "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("quota reservation sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	released, err := s.manager.CleanupExpiredReservations(ctx)
	if err != nil {
		slog.Error("quota reservation sweep failed", "error", err)
		return
	}
	if released > 0 {
		slog.Info("released expired quota reservations", "count", released)
	}
}
