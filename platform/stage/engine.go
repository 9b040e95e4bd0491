// Package stage drives the capital-exposure ladder: promotion gates,
// demotion triggers, transactional stage transitions, and the dual-control
// governance flow guarding the edge into live capital. Assessment is
// demotion-first and executes at most one transition per bot per cycle.
package stage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "stage")

// actorEngine identifies automated transitions in stage-change rows.
const actorEngine = "stage-engine"

// Engine assesses bots against the stage ladder and executes transitions
// atomically with their audit trail.
type Engine struct {
	db iface.Database
}

// NewEngine creates a stage engine over the platform database.
func NewEngine(database iface.Database) *Engine {
	return &Engine{db: database}
}

// AssessBot re-evaluates one bot, executing at most one transition:
// demotion first, then promotion, never both in one assessment. Returns the
// executed change, or nil when the bot holds its stage. Assessments of the
// same bot serialize on a named lock.
func (e *Engine) AssessBot(ctx context.Context, botID string) (*types.StageChange, error) {
	lock := async.NewMultilock("bot:" + botID)
	lock.Lock()
	defer lock.Unlock()

	bot, err := e.db.Bot(ctx, botID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load bot %s", botID)
	}
	now := time.Now().UTC()
	if bot.Archived || bot.Stage.Terminal() {
		return nil, nil
	}
	if now.Before(bot.StageLockedUntil) {
		log.WithFields(logrus.Fields{
			"bot":         bot.ID,
			"lockedUntil": bot.StageLockedUntil,
		}).Debug("Skipping stage-locked bot")
		return nil, nil
	}

	m, err := e.metricsForBot(ctx, bot)
	if err != nil {
		return nil, err
	}
	losingDays := 0
	if bot.Stage == types.StageCanary {
		trades, err := e.db.TradeLogsByBot(ctx, bot.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "could not load trade logs for bot %s", bot.ID)
		}
		losingDays = ConsecutiveLosingDays(trades, strategy.ExchangeTZ())
	}

	if to, reason, demote := EvaluateDemotion(bot, m, losingDays); demote {
		return e.transition(ctx, bot, to, reason, audit.ActorSystem, actorEngine, m, now)
	}
	if bot.ManualPromotion {
		// Operator promotes by hand; automated demotion above still applies.
		return nil, nil
	}
	eval := EvaluatePromotion(bot, m, now)
	if eval == nil || eval.RequiresApproval || !eval.Eligible {
		return nil, nil
	}
	return e.transition(ctx, bot, eval.To, "promotion gates passed", audit.ActorSystem, actorEngine, m, now)
}

// AssessAll runs one assessment cycle over every bot. Per-bot failures are
// logged and skipped so one broken row cannot stall the ladder.
func (e *Engine) AssessAll(ctx context.Context) {
	bots, err := e.db.Bots(ctx)
	if err != nil {
		log.WithError(err).Error("Could not list bots for stage assessment")
		return
	}
	for _, bot := range bots {
		if _, err := e.AssessBot(ctx, bot.ID); err != nil {
			assessmentErrors.Inc()
			log.WithError(err).WithField("bot", bot.ID).Error("Stage assessment failed")
		}
	}
}

// ExecuteApproved advances a bot under an approved governance request. The
// bot must still sit at the approval's source stage; anything else fails
// without mutating state so the approval can revert to PENDING.
func (e *Engine) ExecuteApproved(ctx context.Context, a *types.GovernanceApproval) (*types.StageChange, error) {
	lock := async.NewMultilock("bot:" + a.BotID)
	lock.Lock()
	defer lock.Unlock()

	bot, err := e.db.Bot(ctx, a.BotID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load bot %s", a.BotID)
	}
	if bot.Archived || bot.Stage.Terminal() {
		return nil, errors.Errorf("bot %s is no longer promotable", bot.ID)
	}
	if bot.Stage != a.FromStage {
		return nil, errors.Errorf("bot %s moved to %s since the request was filed", bot.ID, bot.Stage)
	}
	reason := "dual-control approval " + a.ID
	return e.transition(ctx, bot, a.ToStage, reason, audit.ActorUser, a.ReviewedBy, a.MetricsSnapshot, time.Now().UTC())
}

// metricsForBot reads the bot's current generation metrics: the performance
// snapshot when the generation has produced trades, else the backtest
// baseline. No generation means no metrics; the SEV-0 screen handles that.
func (e *Engine) metricsForBot(ctx context.Context, bot *types.Bot) (*types.BaselineMetrics, error) {
	if bot.CurrentGenerationID == "" {
		return nil, nil
	}
	gen, err := e.db.Generation(ctx, bot.CurrentGenerationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.WithField("generationId", bot.CurrentGenerationID).Warn("Bot references a missing generation")
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not load generation %s", bot.CurrentGenerationID)
	}
	if gen.PerformanceSnapshot != nil {
		return gen.PerformanceSnapshot, nil
	}
	return gen.BaselineMetrics, nil
}

// transition commits one stage change: bot row, bot_stage_changes row, and
// the audit entry land in a single transaction.
func (e *Engine) transition(
	ctx context.Context,
	bot *types.Bot,
	to types.Stage,
	reason, actorType, actorID string,
	m *types.BaselineMetrics,
	now time.Time,
) (*types.StageChange, error) {
	from := bot.Stage
	change := &types.StageChange{
		ID:              uuid.NewString(),
		BotID:           bot.ID,
		FromStage:       from,
		ToStage:         to,
		Reason:          reason,
		Actor:           actorID,
		MetricsSnapshot: m,
		CreatedAt:       now,
	}
	event := audit.EventDemoted
	if toRank, ok := to.Rank(); ok {
		if fromRank, ok := from.Rank(); ok && toRank > fromRank {
			event = audit.EventPromoted
		}
	}
	entry, err := audit.NewEntry(event, audit.EntityBot, bot.ID, actorType, actorID, map[string]string{
		"changeId": change.ID,
		"from":     string(from),
		"to":       string(to),
		"reason":   reason,
	})
	if err != nil {
		return nil, err
	}
	entry.PreviousState = stateJSON(from)
	entry.NewState = stateJSON(to)

	updated := *bot
	updated.Stage = to
	updated.StageEnteredAt = now
	updated.UpdatedAt = now
	if err := e.db.ExecuteStageChange(ctx, &updated, change, entry); err != nil {
		return nil, errors.Wrapf(err, "could not execute %s -> %s for bot %s", from, to, bot.ID)
	}
	stageTransitions.WithLabelValues(string(from), string(to)).Inc()
	log.WithFields(logrus.Fields{
		"bot":    bot.ID,
		"from":   from,
		"to":     to,
		"reason": reason,
		"actor":  actorID,
	}).Info("Stage transition executed")
	return change, nil
}

func stateJSON(s types.Stage) json.RawMessage {
	enc, err := json.Marshal(map[string]types.Stage{"stage": s})
	if err != nil {
		return nil
	}
	return enc
}
