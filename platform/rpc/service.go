// Package rpc exposes the platform's thin REST surface: bot creation,
// dual-control governance, and fleet status. Every mutation route runs
// behind the idempotency middleware so retried requests take effect exactly
// once. Reporting views and UI concerns live elsewhere; this surface exists
// for operators and the governance workflow.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/backtest"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/evolution"
	"github.com/gauntletlabs/gauntlet/platform/idempotency"
	"github.com/gauntletlabs/gauntlet/platform/risk"
	"github.com/gauntletlabs/gauntlet/platform/stage"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "rpc")

// Config holds the rpc service dependencies.
type Config struct {
	Addr        string
	Database    iface.Database
	Audit       *audit.Service
	Executor    *backtest.Executor
	Evolution   *evolution.Engine
	Governance  *stage.Governance
	Fleet       *risk.FleetEngine
	Idempotency idempotency.Store
}

// Service is the REST surface. It implements runtime.Service.
type Service struct {
	cfg        *Config
	server     *http.Server
	failStatus error
}

// NewService builds the router and binds it to cfg.Addr.
func NewService(cfg *Config) *Service {
	s := &Service{cfg: cfg}

	router := mux.NewRouter()
	router.Use(idempotency.Middleware(cfg.Idempotency))

	router.HandleFunc("/api/bots/create", s.createBot).Methods(http.MethodPost)
	router.HandleFunc("/api/bots/{id}", s.getBot).Methods(http.MethodGet)
	router.HandleFunc("/api/bots/{id}/backtest", s.runBacktest).Methods(http.MethodPost)
	router.HandleFunc("/api/bots/{id}/evolve", s.evolveBot).Methods(http.MethodPost)
	router.HandleFunc("/api/bots/{id}/breed", s.breedBot).Methods(http.MethodPost)

	router.HandleFunc("/api/governance/request", s.requestPromotion).Methods(http.MethodPost)
	router.HandleFunc("/api/governance/{id}/approve", s.approve).Methods(http.MethodPost)
	router.HandleFunc("/api/governance/{id}/reject", s.reject).Methods(http.MethodPost)
	router.HandleFunc("/api/governance/{id}/withdraw", s.withdraw).Methods(http.MethodPost)
	router.HandleFunc("/api/governance/pending", s.pending).Methods(http.MethodGet)
	router.HandleFunc("/api/governance/history/{botId}", s.history).Methods(http.MethodGet)

	router.HandleFunc("/api/fleet/status", s.fleetStatus).Methods(http.MethodGet)

	s.server = &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Router returns the configured handler, for tests that drive it through
// httptest instead of a bound port.
func (s *Service) Router() http.Handler {
	return s.server.Handler
}

// Start begins serving requests.
func (s *Service) Start() {
	log.WithField("endpoint", s.server.Addr).Info("Starting RPC service")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Could not listen on %s", s.server.Addr)
			s.failStatus = err
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status returns an error if the listener failed.
func (s *Service) Status() error {
	return s.failStatus
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
