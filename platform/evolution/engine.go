package evolution

import (
	"context"
	"strconv"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/prng"
	"github.com/gauntletlabs/gauntlet/platform/regime"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const actorEngine = "evolution-engine"

// Engine judges generations and breeds their successors. Evolution is
// invoked, not scheduled: the REST surface and the research loop call it
// when a generation has live evidence worth acting on.
type Engine struct {
	db       iface.Database
	audits   *audit.Service
	detector *regime.Detector
}

// NewEngine wires the engine. detector may be nil; HIGH priority bots then
// explore with uniform mutation instead of regime-aware.
func NewEngine(database iface.Database, audits *audit.Service, detector *regime.Detector) *Engine {
	return &Engine{db: database, audits: audits, detector: detector}
}

// Outcome bundles what one EvolveBot call produced. Generation is nil when
// the decision was SKIP or NONE.
type Outcome struct {
	Decision   Decision             `json:"decision"`
	Generation *types.Generation    `json:"generation,omitempty"`
	Mutation   MutationType         `json:"mutationType,omitempty"`
	Regime     regime.UnifiedRegime `json:"regime,omitempty"`
	Changed    []string             `json:"changedParams,omitempty"`
}

// EvolveBot judges a bot's current generation and, when the decision calls
// for it, breeds and persists the next one. The mutation seed derives from
// the bot id and the new generation number, so re-running a failed evolve
// reproduces the identical offspring.
func (e *Engine) EvolveBot(ctx context.Context, botID string, now time.Time) (*Outcome, error) {
	bot, err := e.db.Bot(ctx, botID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load bot")
	}
	if bot.Archived || bot.Stage == types.StageKilled {
		return nil, errors.Errorf("bot %s is terminal and cannot breed new generations", botID)
	}

	parent, err := e.db.LatestGeneration(ctx, botID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, errors.Wrap(err, "could not load latest generation")
	}

	decision := Decide(metricsFor(parent))
	evolutionDecisions.WithLabelValues(string(decision.Priority)).Inc()
	out := &Outcome{Decision: decision}
	if decision.Priority == PrioritySkip || decision.Priority == PriorityNone {
		log.WithFields(logrus.Fields{
			"bot":      botID,
			"priority": decision.Priority,
		}).Debug("No evolution needed")
		return out, nil
	}

	arch, err := strategy.Resolve(bot)
	if err != nil {
		return nil, err
	}

	// A non-skip decision implies a parent with enough trades to judge.
	nextNumber := parent.Number + 1
	source := parent.StrategyConfig
	if source == nil {
		source = bot.StrategyConfig
	}

	mutation, current := e.mutationFor(ctx, decision.Priority, bot.Symbol, now)
	rng := prng.NewForRun(botID, "gen-"+strconv.Itoa(nextNumber))
	mutated, changed := NewMutator(rng).Mutate(source, SpaceFor(arch.ID), Options{
		Type:       mutation,
		Generation: nextNumber,
		Regime:     current,
	})

	gen := &types.Generation{
		ID:             uuid.NewString(),
		BotID:          botID,
		Number:         nextNumber,
		ParentNumber:   parent.Number,
		StrategyConfig: mutated,
		CreatedAt:      now,
	}
	if err := e.db.SaveGeneration(ctx, gen); err != nil {
		return nil, errors.Wrap(err, "could not save generation")
	}
	bot.CurrentGenerationID = gen.ID
	bot.UpdatedAt = now
	if err := e.db.SaveBot(ctx, bot); err != nil {
		return nil, errors.Wrap(err, "could not point bot at new generation")
	}

	e.recordEvolved(ctx, gen, map[string]interface{}{
		"botId":         gen.BotID,
		"generation":    gen.Number,
		"parent":        gen.ParentNumber,
		"priority":      decision.Priority,
		"fitness":       decision.Fitness,
		"reasons":       decision.Reasons,
		"mutationType":  mutation,
		"regime":        current,
		"changedParams": changed,
	})
	generationsEvolved.WithLabelValues(string(mutation)).Inc()
	log.WithFields(logrus.Fields{
		"bot":        botID,
		"generation": nextNumber,
		"priority":   decision.Priority,
		"mutation":   mutation,
		"changed":    changed,
	}).Info("Bred new generation")

	out.Generation = gen
	out.Mutation = mutation
	out.Regime = current
	out.Changed = changed
	return out, nil
}

// Offspring breeds one child generation for botA by crossing its breeding
// config with botB's. Both parents must run the same archetype; the child
// joins botA's lineage and becomes its current generation.
func (e *Engine) Offspring(ctx context.Context, botAID, botBID string, now time.Time) (*types.Generation, error) {
	botA, err := e.db.Bot(ctx, botAID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load first parent")
	}
	botB, err := e.db.Bot(ctx, botBID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load second parent")
	}
	archA, err := strategy.Resolve(botA)
	if err != nil {
		return nil, err
	}
	archB, err := strategy.Resolve(botB)
	if err != nil {
		return nil, err
	}
	if archA.ID != archB.ID {
		return nil, errors.Errorf("cannot cross %s with %s: parents run different archetypes", archA.ID, archB.ID)
	}

	cfgA, parentNumber, err := e.breedingConfig(ctx, botA)
	if err != nil {
		return nil, err
	}
	cfgB, _, err := e.breedingConfig(ctx, botB)
	if err != nil {
		return nil, err
	}

	nextNumber := parentNumber + 1
	rng := prng.NewForRun(botAID+"+"+botBID, "gen-"+strconv.Itoa(nextNumber))
	child := NewMutator(rng).Crossover(cfgA, cfgB, SpaceFor(archA.ID))

	gen := &types.Generation{
		ID:             uuid.NewString(),
		BotID:          botAID,
		Number:         nextNumber,
		ParentNumber:   parentNumber,
		StrategyConfig: child,
		CreatedAt:      now,
	}
	if err := e.db.SaveGeneration(ctx, gen); err != nil {
		return nil, errors.Wrap(err, "could not save offspring generation")
	}
	botA.CurrentGenerationID = gen.ID
	botA.UpdatedAt = now
	if err := e.db.SaveBot(ctx, botA); err != nil {
		return nil, errors.Wrap(err, "could not point bot at offspring")
	}

	e.recordEvolved(ctx, gen, map[string]interface{}{
		"botId":      gen.BotID,
		"generation": gen.Number,
		"parent":     gen.ParentNumber,
		"crossover":  true,
		"partnerBot": botBID,
	})
	crossoverOffspring.Inc()
	log.WithFields(logrus.Fields{
		"bot":        botAID,
		"partner":    botBID,
		"generation": nextNumber,
		"archetype":  archA.ID,
	}).Info("Bred crossover offspring")
	return gen, nil
}

// mutationFor picks the mutation mode for a priority. HIGH explores, regime
// aware when a detector is wired and uniform otherwise; MEDIUM perturbs
// around the current values; LOW refines with decaying strength.
func (e *Engine) mutationFor(ctx context.Context, p Priority, symbol string, now time.Time) (MutationType, regime.UnifiedRegime) {
	switch p {
	case PriorityHigh:
		if e.detector == nil {
			return Uniform, regime.Unknown
		}
		snap, err := e.detector.Detect(ctx, symbol, now)
		if err != nil {
			log.WithError(err).WithField("symbol", symbol).Warn("Regime detection failed, mutating uniform")
			return Uniform, regime.Unknown
		}
		return RegimeAware, snap.Unified
	case PriorityMedium:
		return Gaussian, regime.Unknown
	default:
		return Adaptive, regime.Unknown
	}
}

// breedingConfig reads a bot's current config for crossover: its latest
// generation when one exists, its own strategy config otherwise.
func (e *Engine) breedingConfig(ctx context.Context, bot *types.Bot) (types.Config, int, error) {
	gen, err := e.db.LatestGeneration(ctx, bot.ID)
	if errors.Is(err, db.ErrNotFound) {
		return bot.StrategyConfig, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "could not load latest generation for %s", bot.ID)
	}
	cfg := gen.StrategyConfig
	if cfg == nil {
		cfg = bot.StrategyConfig
	}
	return cfg, gen.Number, nil
}

// metricsFor prefers live performance over the backtest baseline. A
// zero-trade generation carries a nil snapshot rather than inherited
// numbers, so the fallback never double-counts a parent's record.
func metricsFor(gen *types.Generation) *types.BaselineMetrics {
	if gen == nil {
		return nil
	}
	if gen.PerformanceSnapshot != nil {
		return gen.PerformanceSnapshot
	}
	return gen.BaselineMetrics
}

func (e *Engine) recordEvolved(ctx context.Context, gen *types.Generation, payload map[string]interface{}) {
	if e.audits == nil {
		return
	}
	entry, err := audit.NewEntry(audit.EventGenerationEvolved, audit.EntityGeneration, gen.ID,
		audit.ActorSystem, actorEngine, payload)
	if err != nil {
		log.WithError(err).WithField("generation", gen.ID).Error("Could not build evolution audit entry")
		return
	}
	if _, err := e.audits.Record(ctx, entry); err != nil {
		log.WithError(err).WithField("generation", gen.ID).Error("Could not record evolution audit entry")
	}
}
