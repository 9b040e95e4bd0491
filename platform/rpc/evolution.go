package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

type breedRequest struct {
	PartnerID string `json:"partnerId"`
}

// evolveBot judges the bot's current generation and breeds the next one
// when the decision ladder calls for it. The response carries the decision
// either way, so a SKIP is a 200 with no generation.
func (s *Service) evolveBot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Evolution == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("evolution engine is not configured"))
		return
	}
	botID := mux.Vars(r)["id"]

	out, err := s.cfg.Evolution.EvolveBot(r.Context(), botID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// breedBot crosses the bot's breeding config with a partner's. Both
// parents must run the same archetype; the child joins this bot's lineage.
func (s *Service) breedBot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Evolution == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("evolution engine is not configured"))
		return
	}
	botID := mux.Vars(r)["id"]

	var req breedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request"))
		return
	}
	if req.PartnerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("partnerId is required"))
		return
	}

	gen, err := s.cfg.Evolution.Offspring(r.Context(), botID, req.PartnerID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, gen)
}
