package broker

import (
	"context"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
)

// Service routes order flow through the guarded adapter and drives the
// heartbeat loop. It implements risk's Liquidator contract so EMERGENCY
// exits have a real execution path.
type Service struct {
	ctx       context.Context
	cancel    context.CancelFunc
	adapter   Adapter
	guard     *Guard
	heartbeat *Heartbeat
}

// NewService wraps an adapter with the broker-class guard and a heartbeat
// monitor. A nil adapter gets the paper venue.
func NewService(ctx context.Context, adapter Adapter) *Service {
	if adapter == nil {
		adapter = NewPaperAdapter()
	}
	name := "broker"
	if features.Get().FixEnabled {
		name = "broker-fix"
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		adapter:   adapter,
		guard:     NewGuard(name, ClassBroker),
		heartbeat: NewHeartbeat(name, adapter),
	}
}

// Heartbeat exposes the monitor for the autonomy loop's health gate.
func (s *Service) Heartbeat() *Heartbeat {
	return s.heartbeat
}

// SubmitOrder routes an order through the guard. A degraded or
// disconnected adapter refuses new risk; reduce-only orders still pass so
// positions can always be flattened.
func (s *Service) SubmitOrder(ctx context.Context, o *Order) (*ExecutionReport, error) {
	if !o.Reduce && !s.heartbeat.Allow() {
		return nil, errclass.Newf(errclass.Transient, "broker %s, refusing new exposure", s.heartbeat.Health())
	}
	var report *ExecutionReport
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		report, err = s.adapter.SubmitOrder(ctx, o)
		return err
	})
	if err != nil {
		ordersTotal.WithLabelValues("submit", "error").Inc()
		return nil, err
	}
	ordersTotal.WithLabelValues("submit", string(report.Status)).Inc()
	return report, nil
}

// CancelOrder routes a cancel through the guard.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*ExecutionReport, error) {
	var report *ExecutionReport
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		report, err = s.adapter.CancelOrder(ctx, orderID)
		return err
	})
	if err != nil {
		ordersTotal.WithLabelValues("cancel", "error").Inc()
		return nil, err
	}
	ordersTotal.WithLabelValues("cancel", string(report.Status)).Inc()
	return report, nil
}

// SubmitExit flattens one position with a reduce-only market order. The
// fleet engine calls this for every marked position during EMERGENCY.
func (s *Service) SubmitExit(ctx context.Context, p *types.Position) error {
	side := types.Short
	if p.Side == types.Short {
		side = types.Long
	}
	report, err := s.SubmitOrder(ctx, &Order{
		ID:       uuid.New().String(),
		BotID:    p.BotID,
		Symbol:   p.Symbol,
		Side:     side,
		Quantity: p.Quantity,
		Type:     OrderMarket,
		Reduce:   true,
		TraceID:  p.ID,
	})
	if err != nil {
		return err
	}
	if report.Status != ExecFilled {
		return errclass.Newf(errclass.Transient, "exit for position %s not filled: %s %s", p.ID, report.Status, report.Reason)
	}
	return nil
}

// Start drives the heartbeat loop.
func (s *Service) Start() {
	cfg := params.Platform()
	async.RunEvery(s.ctx, cfg.HeartbeatInterval, func() {
		s.heartbeat.Beat(s.ctx)
	})
	log.WithField("interval", cfg.HeartbeatInterval).Info("Broker service started")
}

// Stop terminates the heartbeat loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status surfaces adapter health to /healthz.
func (s *Service) Status() error {
	if h := s.heartbeat.Health(); h != Healthy {
		return errclass.Newf(errclass.Transient, "broker %s", h)
	}
	return nil
}
