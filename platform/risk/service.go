package risk

import (
	"context"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
)

// Config holds the risk service dependencies. Liquidator may be nil when no
// broker is wired; emergency exits then stay marked in the database.
type Config struct {
	Database   iface.Database
	Audit      *audit.Service
	Liquidator Liquidator
}

// Service runs the fleet risk loop and exposes the per-bot gate engine.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	engine *Engine
	fleet  *FleetEngine
}

// NewService wires the per-bot gates and the fleet engine.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		engine: NewEngine(cfg.Database, cfg.Audit),
		fleet:  NewFleetEngine(cfg.Database, cfg.Audit, cfg.Liquidator),
	}
}

// Engine returns the per-bot gate engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Fleet returns the fleet engine.
func (s *Service) Fleet() *FleetEngine {
	return s.fleet
}

// Start spawns the fleet assessment loop.
func (s *Service) Start() {
	interval := params.Platform().FleetCheckInterval
	async.RunEvery(s.ctx, interval, func() {
		if _, err := s.fleet.Assess(s.ctx); err != nil {
			fleetAssessFailures.Inc()
			log.WithError(err).Error("Fleet risk assessment failed")
		}
	})
	log.WithField("interval", interval).Info("Risk service started")
}

// Stop terminates the fleet loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; cycle failures are logged and counted.
func (s *Service) Status() error {
	return nil
}
