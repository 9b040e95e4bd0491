package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/backtest"
	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/platform/validators"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type createBotRequest struct {
	Name             string             `json:"name"`
	Symbol           string             `json:"symbol"`
	ArchetypeID      string             `json:"archetypeId,omitempty"`
	StrategyConfig   types.Config       `json:"strategyConfig,omitempty"`
	RiskConfig       map[string]float64 `json:"riskConfig"`
	SessionMode      string             `json:"sessionMode,omitempty"`
	SessionStart     string             `json:"sessionStart,omitempty"`
	SessionEnd       string             `json:"sessionEnd,omitempty"`
	AllocatedCapital string             `json:"allocatedCapital,omitempty"`
	RequestedBy      string             `json:"requestedBy,omitempty"`
}

type createBotResponse struct {
	ID    string               `json:"id"`
	Stage types.Stage          `json:"stage"`
	Warns []validators.Finding `json:"warnings,omitempty"`
}

type validationFailure struct {
	Error    string               `json:"error"`
	Findings []validators.Finding `json:"findings"`
}

// createBot screens the request through the composite validator and, when
// it passes, persists the bot in TRIALS and appends a BOT_CREATED audit
// event. Retried requests replay through the idempotency middleware.
func (s *Service) createBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request"))
		return
	}

	capital := decimal.NewFromInt(10000)
	if req.AllocatedCapital != "" {
		var err error
		if capital, err = decimal.NewFromString(req.AllocatedCapital); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid allocatedCapital"))
			return
		}
	}

	mode := types.SessionRTH
	if req.SessionMode != "" {
		mode = types.SessionMode(req.SessionMode)
	}

	now := time.Now().UTC()
	bot := &types.Bot{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Symbol:           req.Symbol,
		Stage:            types.StageTrials,
		ArchetypeID:      req.ArchetypeID,
		StrategyConfig:   req.StrategyConfig,
		RiskConfig:       req.RiskConfig,
		SessionMode:      mode,
		SessionStart:     req.SessionStart,
		SessionEnd:       req.SessionEnd,
		AllocatedCapital: capital,
		PeakEquity:       capital,
		StageEnteredAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	res := validators.ValidateBotCreation(bot)
	if !res.OK(bot.Stage) {
		writeJSON(w, http.StatusBadRequest, validationFailure{
			Error:    "bot creation blocked by validation",
			Findings: res.Blockers(bot.Stage),
		})
		return
	}

	if err := s.cfg.Database.SaveBot(r.Context(), bot); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.recordBotCreated(r, bot, req.RequestedBy)

	log.WithField("bot", bot.ID).WithField("name", bot.Name).Info("Bot created")
	writeJSON(w, http.StatusCreated, createBotResponse{ID: bot.ID, Stage: bot.Stage, Warns: res.Findings})
}

func (s *Service) recordBotCreated(r *http.Request, bot *types.Bot, requestedBy string) {
	actorType, actorID := audit.ActorSystem, "rpc"
	if requestedBy != "" {
		actorType, actorID = audit.ActorUser, requestedBy
	}
	entry, err := audit.NewEntry(audit.EventBotCreated, audit.EntityBot, bot.ID, actorType, actorID, bot)
	if err == nil {
		_, err = s.cfg.Audit.Record(r.Context(), entry)
	}
	if err != nil {
		// The bot exists either way; a missing audit row is a finding for
		// VerifyChain, not a reason to fail the create.
		log.WithError(err).WithField("bot", bot.ID).Error("Could not record BOT_CREATED")
	}
}

type backtestRequest struct {
	Timeframe      string `json:"timeframe"`
	Start          string `json:"start"` // RFC 3339 or YYYY-MM-DD, UTC.
	End            string `json:"end"`
	InitialCapital string `json:"initialCapital,omitempty"`
}

func parseBacktestTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", s)
	return ts.UTC(), err
}

// runBacktest executes one deterministic backtest synchronously and returns
// the persisted session row. A classified failure still answers 200: the
// session is the result, and its errorClassification says what went wrong.
func (s *Service) runBacktest(w http.ResponseWriter, r *http.Request) {
	bot, err := s.cfg.Database.Bot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request"))
		return
	}
	start, err := parseBacktestTime(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid start"))
		return
	}
	end, err := parseBacktestTime(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid end"))
		return
	}
	capital := decimal.NewFromInt(10000)
	if req.InitialCapital != "" {
		if capital, err = decimal.NewFromString(req.InitialCapital); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid initialCapital"))
			return
		}
	}

	sess, err := s.cfg.Executor.Run(r.Context(), backtest.RunRequest{
		Bot:            bot,
		Timeframe:      bars.Timeframe(req.Timeframe),
		Start:          start,
		End:            end,
		InitialCapital: capital,
	})
	if sess == nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) getBot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bot, err := s.cfg.Database.Bot(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}
