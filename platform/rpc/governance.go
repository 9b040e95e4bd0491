package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/stage"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

type governanceRequest struct {
	BotID         string `json:"botId"`
	RequestedBy   string `json:"requestedBy"`
	Justification string `json:"justification"`
}

type reviewRequest struct {
	UserID string `json:"userId"`
	Notes  string `json:"notes,omitempty"`
}

func (s *Service) requestPromotion(w http.ResponseWriter, r *http.Request) {
	var req governanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request"))
		return
	}
	row, err := s.cfg.Governance.Request(r.Context(), req.BotID, req.RequestedBy, req.Justification)
	if err != nil {
		writeError(w, governanceStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Service) approve(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, s.cfg.Governance.Approve)
}

func (s *Service) reject(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, s.cfg.Governance.Reject)
}

func (s *Service) withdraw(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request"))
		return
	}
	row, err := s.cfg.Governance.Withdraw(r.Context(), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		writeError(w, governanceStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Service) review(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id, userID, notes string) (*types.GovernanceApproval, error),
) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request"))
		return
	}
	row, err := fn(r.Context(), mux.Vars(r)["id"], req.UserID, req.Notes)
	if err != nil {
		writeError(w, governanceStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Service) pending(w http.ResponseWriter, r *http.Request) {
	rows, err := s.cfg.Governance.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Service) history(w http.ResponseWriter, r *http.Request) {
	rows, err := s.cfg.Governance.ForBot(r.Context(), mux.Vars(r)["botId"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit >= 0 && limit < len(rows) {
			rows = rows[:limit]
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

// governanceStatus maps governance failures to HTTP codes. Dual-control and
// state conflicts are the caller's problem; anything else is the server's.
func governanceStatus(err error) int {
	switch {
	case errors.Is(err, stage.ErrDualControl):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

func (s *Service) fleetStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.cfg.Fleet.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":        state.Tier.String(),
		"canOpen":     s.cfg.Fleet.CanOpenPosition(),
		"state":       state,
		"generatedAt": time.Now().UTC(),
	})
}
