package idempotency

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/params"
)

// Service runs the hourly sweeper that clears expired records, including
// claims stranded in processing by a crashed worker.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	store  Store
}

// NewService wires the sweeper over the given store.
func NewService(ctx context.Context, store Store) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{ctx: ctx, cancel: cancel, store: store}
}

// Store returns the underlying store for middleware wiring.
func (s *Service) Store() Store {
	return s.store
}

// Start spawns the sweep loop.
func (s *Service) Start() {
	interval := params.Platform().IdempotencyCleanupInterval
	async.RunEvery(s.ctx, interval, func() {
		removed, err := s.store.Cleanup(s.ctx, time.Now().UTC())
		if err != nil {
			log.WithError(err).Error("Idempotency sweep failed")
			return
		}
		if removed > 0 {
			log.WithField("removed", removed).Debug("Swept expired idempotency records")
		}
	})
	log.WithField("interval", interval).Info("Idempotency sweeper started")
}

// Stop terminates the sweep loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; sweep failures are logged.
func (s *Service) Status() error {
	return nil
}
