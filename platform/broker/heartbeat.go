package broker

import (
	"context"
	"sync"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
)

// Heartbeat pings an adapter on a fixed interval and tracks consecutive
// misses. One miss is a warning, three degrade the adapter, five mark it
// disconnected. Any successful ping resets the count.
type Heartbeat struct {
	name    string
	adapter Adapter

	mu       sync.Mutex
	missed   int
	lastSeen time.Time
}

// NewHeartbeat builds a monitor for the named adapter. Beat must be driven
// by the owning service loop.
func NewHeartbeat(name string, adapter Adapter) *Heartbeat {
	return &Heartbeat{name: name, adapter: adapter}
}

// Beat performs one ping cycle and returns the resulting health.
func (h *Heartbeat) Beat(ctx context.Context) Health {
	cfg := params.Platform()
	pingCtx, cancel := context.WithTimeout(ctx, cfg.BrokerTimeout)
	err := h.adapter.Ping(pingCtx)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		if h.missed > 0 {
			log.WithField("adapter", h.name).Info("Heartbeat recovered")
		}
		h.missed = 0
		h.lastSeen = time.Now()
		heartbeatMisses.WithLabelValues(h.name).Set(0)
		return Healthy
	}

	h.missed++
	heartbeatMisses.WithLabelValues(h.name).Set(float64(h.missed))
	entry := log.WithField("adapter", h.name).WithField("missed", h.missed).WithError(err)
	switch {
	case h.missed >= cfg.HeartbeatDisconnected:
		entry.Error("Broker disconnected")
	case h.missed >= cfg.HeartbeatDegraded:
		entry.Error("Broker degraded")
	case h.missed >= cfg.HeartbeatWarning:
		entry.Warn("Missed broker heartbeat")
	}
	return h.healthLocked(cfg)
}

// Health reports the adapter's current availability.
func (h *Heartbeat) Health() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthLocked(params.Platform())
}

func (h *Heartbeat) healthLocked(cfg *params.PlatformConfig) Health {
	switch {
	case h.missed >= cfg.HeartbeatDisconnected:
		return Unavailable
	case h.missed >= cfg.HeartbeatDegraded:
		return Degraded
	default:
		return Healthy
	}
}

// Allow reports whether the autonomy loop may route orders through the
// adapter. Anything short of HEALTHY gates the loop.
func (h *Heartbeat) Allow() bool {
	return h.Health() == Healthy
}

// LastSeen returns the time of the last successful ping.
func (h *Heartbeat) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}
