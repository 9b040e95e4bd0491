package broker

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
)

// Class selects the resilience policy for an external dependency. The broker
// itself gets the tightest policy; market data and research calls tolerate
// slower upstreams.
type Class string

// Guard classes.
const (
	ClassBroker     Class = "broker"
	ClassMarketData Class = "marketdata"
	ClassResearch   Class = "research"
)

// policy is a Class resolved against the platform config.
type policy struct {
	timeout      time.Duration
	retries      uint64
	breakerLimit uint32
	breakerReset time.Duration
}

func policyFor(class Class) policy {
	cfg := params.Platform()
	switch class {
	case ClassMarketData:
		return policy{cfg.MarketDataTimeout, uint64(cfg.MarketDataRetries), uint32(cfg.MarketDataBreakerLimit), cfg.MarketDataBreakerReset}
	case ClassResearch:
		return policy{cfg.ResearchTimeout, uint64(cfg.ResearchRetries), uint32(cfg.ResearchBreakerThreshold), cfg.ResearchBreakerReset}
	default:
		return policy{cfg.BrokerTimeout, uint64(cfg.BrokerRetries), uint32(cfg.BrokerBreakerThreshold), cfg.BrokerBreakerReset}
	}
}

// Guard wraps calls to one external dependency with timeout, bounded retry,
// and a circuit breaker. One Guard per dependency; the breaker state is
// shared across every call site that holds it.
type Guard struct {
	class   Class
	pol     policy
	breaker *gobreaker.CircuitBreaker
}

// NewGuard builds a Guard for the given class using the current platform
// config. The breaker opens after the class's consecutive-failure threshold
// and probes again after its reset cooldown.
func NewGuard(name string, class Class) *Guard {
	pol := policyFor(class)
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: pol.breakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= pol.breakerLimit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerTransitions.WithLabelValues(name, to.String()).Inc()
			log.WithFields(map[string]interface{}{
				"guard": name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return &Guard{class: class, pol: pol, breaker: br}
}

// Do runs fn under the guard's policy: each attempt gets the class timeout,
// transient failures are retried with constant backoff up to the class retry
// budget, and the whole call is refused while the breaker is open.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		backoff := retry.WithMaxRetries(g.pol.retries, retry.NewConstant(250*time.Millisecond))
		return nil, retry.Do(ctx, backoff, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, g.pol.timeout)
			defer cancel()
			if err := fn(attemptCtx); err != nil {
				guardFailures.WithLabelValues(string(g.class)).Inc()
				if errclass.IsRecoverable(err) || errors.Is(err, context.DeadlineExceeded) {
					return retry.RetryableError(err)
				}
				return err
			}
			return nil
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errclass.Wrap(errclass.Transient, err, "circuit open")
	}
	return err
}

// State reports the underlying breaker state for health endpoints.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
