package stage

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/sirupsen/logrus"
)

// Config holds the stage service dependencies.
type Config struct {
	Database iface.Database
	Audit    *audit.Service
}

// Service runs the periodic stage evaluation worker and the governance
// expiration sweeper.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	engine *Engine
	gov    *Governance
}

// NewService wires the stage engine and governance flow.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	engine := NewEngine(cfg.Database)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		engine: engine,
		gov:    NewGovernance(cfg.Database, engine, cfg.Audit),
	}
}

// Engine returns the assessment engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Governance returns the dual-control flow.
func (s *Service) Governance() *Governance {
	return s.gov
}

// bootAssessDelay defers the catch-up assessment past service startup.
// RunEvery fires only after its first full period, so without the one-shot
// a freshly started node would leave every bot unassessed for the whole
// first evaluation interval.
var bootAssessDelay = 15 * time.Second

// Start spawns the evaluation and sweeper workers.
func (s *Service) Start() {
	cfg := params.Platform()
	async.RunAfter(s.ctx, bootAssessDelay, func() {
		s.engine.AssessAll(s.ctx)
	})
	async.RunEvery(s.ctx, cfg.StageEvaluateInterval, func() {
		s.engine.AssessAll(s.ctx)
	})
	async.RunEvery(s.ctx, cfg.ApprovalSweepInterval, func() {
		if _, err := s.gov.SweepExpired(s.ctx); err != nil {
			log.WithError(err).Error("Governance expiry sweep failed")
		}
	})
	log.WithFields(logrus.Fields{
		"evaluateEvery": cfg.StageEvaluateInterval,
		"sweepEvery":    cfg.ApprovalSweepInterval,
	}).Info("Stage service started")
}

// Stop terminates the workers.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; worker failures are logged per cycle.
func (s *Service) Status() error {
	return nil
}
