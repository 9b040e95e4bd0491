// Package risk applies the capital-protection gates: per-bot checks run
// before every position open, and the fleet engine that aggregates exposure
// across all bots and drives the kill-switch tier. Per-bot blocks act on one
// bot's account; the fleet tier restricts the whole platform.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "risk")

// actorEngine identifies automated risk actions in the audit trail.
const actorEngine = "risk-engine"

// BlockLevel is the outcome of the per-bot gates, ordered by severity.
type BlockLevel int

// Block levels. WARNING logs and allows the open; SOFT_BLOCK denies opens
// but allows exits; HARD_BLOCK denies everything and pauses the bot.
const (
	BlockNone BlockLevel = iota
	BlockWarning
	BlockSoft
	BlockHard
)

func (l BlockLevel) String() string {
	switch l {
	case BlockNone:
		return "NONE"
	case BlockWarning:
		return "WARNING"
	case BlockSoft:
		return "SOFT_BLOCK"
	case BlockHard:
		return "HARD_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// AllowsOpen reports whether a new position may be opened at this level.
func (l BlockLevel) AllowsOpen() bool {
	return l < BlockSoft
}

// AllowsExit reports whether closing orders may still be placed.
func (l BlockLevel) AllowsExit() bool {
	return l < BlockHard
}

// GateDecision is the verdict of one pre-open check: the worst level any
// gate produced and the gate that produced it.
type GateDecision struct {
	Level  BlockLevel `json:"level"`
	Gate   string     `json:"gate,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Blown  bool       `json:"blown,omitempty"` // The blown-account check fired; the bot has been killed.
}

// raise escalates the decision, keeping the first reason at the worst level.
func (d *GateDecision) raise(level BlockLevel, gate, reason string) {
	if level <= d.Level {
		return
	}
	d.Level = level
	d.Gate = gate
	d.Reason = reason
}

// ContractCapForStage returns the per-order contract cap for a stage.
// Terminal stages cap at zero.
func ContractCapForStage(cfg *params.PlatformConfig, stage types.Stage) int {
	switch stage {
	case types.StageTrials:
		return cfg.MaxContractsTrials
	case types.StagePaper:
		return cfg.MaxContractsPaper
	case types.StageShadow:
		return cfg.MaxContractsShadow
	case types.StageCanary:
		return cfg.MaxContractsCanary
	case types.StageLive:
		return cfg.MaxContractsLive
	}
	return 0
}

// Engine runs the per-bot risk gates. It reads accounts and positions and,
// when the blown-account check fires, kills the bot in the same transaction
// that records the attempt.
type Engine struct {
	db        iface.Database
	audits    *audit.Service
	overrides *cache.Cache
}

// NewEngine creates a per-bot gate engine over the platform database.
func NewEngine(database iface.Database, audits *audit.Service) *Engine {
	return &Engine{
		db:        database,
		audits:    audits,
		overrides: cache.New(overrideCacheTTL, overrideCacheTTL),
	}
}

// CheckOpen runs every per-bot gate against a proposed open of the given
// contract count. All gates are evaluated; the worst level wins. A WARNING
// outcome is logged here so callers can treat it as an allow.
func (e *Engine) CheckOpen(ctx context.Context, botID string, contracts int) (*GateDecision, error) {
	lock := async.NewMultilock("bot:" + botID)
	lock.Lock()
	defer lock.Unlock()

	bot, err := e.db.Bot(ctx, botID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load bot %s", botID)
	}
	now := time.Now().UTC()
	cfg := params.Platform()

	if bot.Stage == types.StageKilled {
		return &GateDecision{Level: BlockHard, Gate: "lifecycle", Reason: "bot is KILLED"}, nil
	}

	account, err := e.db.Account(ctx, botID)
	if errors.Is(err, db.ErrNotFound) {
		// Simulation stages trade without a funded account; there is no
		// capital to protect yet.
		return &GateDecision{Level: BlockNone}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not load account for bot %s", botID)
	}
	if account.Status != types.AccountActive {
		return &GateDecision{
			Level:  BlockHard,
			Gate:   "account",
			Reason: fmt.Sprintf("account is %s", account.Status),
		}, nil
	}

	// The blown-account check runs before the tiered gates: once capital is
	// gone there is nothing left to warn about.
	dd := account.DrawdownPct()
	if reason := blownReason(cfg, bot, account, dd); reason != "" {
		if err := e.killBlown(ctx, bot, account, dd, reason, now); err != nil {
			return nil, err
		}
		return &GateDecision{Level: BlockHard, Gate: "blownAccount", Reason: reason, Blown: true}, nil
	}

	decision := &GateDecision{Level: BlockNone}
	e.applyDrawdownGate(ctx, decision, bot.ID, dd, now)
	e.applyDailyLossGate(ctx, decision, bot.ID, account, now)
	applyPositionSizeGate(decision, cfg, bot, contracts)
	if err := e.applyVaRGate(ctx, decision, bot, account, now); err != nil {
		return nil, err
	}

	switch {
	case decision.Level == BlockWarning:
		log.WithFields(logrus.Fields{
			"bot":    botID,
			"gate":   decision.Gate,
			"reason": decision.Reason,
		}).Warn("Risk gate warning")
	case decision.Level >= BlockSoft:
		gateBlocks.WithLabelValues(decision.Gate, decision.Level.String()).Inc()
		log.WithFields(logrus.Fields{
			"bot":    botID,
			"gate":   decision.Gate,
			"level":  decision.Level,
			"reason": decision.Reason,
		}).Warn("Risk gate blocked position open")
	}
	return decision, nil
}

// blownReason reports why an account is blown, or empty when it is not.
func blownReason(cfg *params.PlatformConfig, bot *types.Bot, account *types.Account, dd float64) string {
	if dd >= cfg.BlownDrawdown {
		return fmt.Sprintf("drawdown %.1f%% reached the blown-account threshold %.0f%%", dd, cfg.BlownDrawdown)
	}
	if bot.AllocatedCapital.Sign() > 0 {
		frac, _ := account.Balance.Div(bot.AllocatedCapital).Float64()
		if frac < cfg.BlownCapitalFrac {
			return fmt.Sprintf("remaining capital %.1f%% of allocation is below %.0f%%",
				frac*100, cfg.BlownCapitalFrac*100)
		}
	}
	return ""
}

// applyDrawdownGate applies the tiered drawdown thresholds, each resolvable
// by an active override.
func (e *Engine) applyDrawdownGate(ctx context.Context, d *GateDecision, botID string, dd float64, now time.Time) {
	cfg := params.Platform()
	hard := e.limitFor(ctx, ParamDrawdownHard, botID, cfg.DrawdownHard, now)
	soft := e.limitFor(ctx, ParamDrawdownSoft, botID, cfg.DrawdownSoft, now)
	warn := e.limitFor(ctx, ParamDrawdownWarning, botID, cfg.DrawdownWarning, now)
	switch {
	case dd >= hard:
		d.raise(BlockHard, "drawdown", fmt.Sprintf("drawdown %.1f%% at or above %.0f%%", dd, hard))
	case dd >= soft:
		d.raise(BlockSoft, "drawdown", fmt.Sprintf("drawdown %.1f%% at or above %.0f%%", dd, soft))
	case dd >= warn:
		d.raise(BlockWarning, "drawdown", fmt.Sprintf("drawdown %.1f%% at or above %.0f%%", dd, warn))
	}
}

// applyDailyLossGate applies the intraday loss thresholds. Only losses
// count; a flat or positive day never gates.
func (e *Engine) applyDailyLossGate(ctx context.Context, d *GateDecision, botID string, account *types.Account, now time.Time) {
	if account.DailyPnl.Sign() >= 0 || account.StartOfDayBalance.Sign() <= 0 {
		return
	}
	cfg := params.Platform()
	lossPct, _ := account.DailyPnl.Abs().
		Div(account.StartOfDayBalance).
		Mul(hundred).Float64()
	hard := e.limitFor(ctx, ParamDailyLossHard, botID, cfg.DailyLossHard, now)
	soft := e.limitFor(ctx, ParamDailyLossSoft, botID, cfg.DailyLossSoft, now)
	warn := e.limitFor(ctx, ParamDailyLossWarning, botID, cfg.DailyLossWarning, now)
	switch {
	case lossPct >= hard:
		d.raise(BlockHard, "dailyLoss", fmt.Sprintf("daily loss %.1f%% at or above %.0f%%", lossPct, hard))
	case lossPct >= soft:
		d.raise(BlockSoft, "dailyLoss", fmt.Sprintf("daily loss %.1f%% at or above %.0f%%", lossPct, soft))
	case lossPct >= warn:
		d.raise(BlockWarning, "dailyLoss", fmt.Sprintf("daily loss %.1f%% at or above %.0f%%", lossPct, warn))
	}
}

// applyPositionSizeGate caps the order at the tighter of the bot's own
// maxPositionSize and the stage cap.
func applyPositionSizeGate(d *GateDecision, cfg *params.PlatformConfig, bot *types.Bot, contracts int) {
	limit := ContractCapForStage(cfg, bot.Stage)
	if own := int(bot.MaxPositionSize()); own > 0 && own < limit {
		limit = own
	}
	if contracts > limit {
		d.raise(BlockSoft, "positionSize",
			fmt.Sprintf("%d contracts exceeds the %d-contract cap for %s", contracts, limit, bot.Stage))
	}
}

// killBlown terminates a blown bot: stage to KILLED, account marked blown,
// attempt row and audit entry appended. One transaction.
func (e *Engine) killBlown(ctx context.Context, bot *types.Bot, account *types.Account, dd float64, reason string, now time.Time) error {
	attempt := &types.AccountAttempt{
		ID:           uuid.NewString(),
		BotID:        bot.ID,
		Reason:       reason,
		FinalBalance: account.Balance,
		PeakEquity:   account.PeakEquity,
		DrawdownPct:  dd,
		CreatedAt:    now,
	}
	entry, err := audit.NewEntry(audit.EventBotKilled, audit.EntityBot, bot.ID, audit.ActorSystem, actorEngine,
		map[string]interface{}{
			"attemptId":    attempt.ID,
			"reason":       reason,
			"drawdownPct":  dd,
			"finalBalance": account.Balance.String(),
		})
	if err != nil {
		return err
	}

	killed := *bot
	killed.Stage = types.StageKilled
	killed.StageEnteredAt = now
	killed.UpdatedAt = now
	closed := *account
	closed.Status = types.AccountBlown
	closed.UpdatedAt = now
	if err := e.db.KillBotWithAttempt(ctx, &killed, &closed, attempt, entry); err != nil {
		return errors.Wrapf(err, "could not kill blown bot %s", bot.ID)
	}
	blownAccounts.Inc()
	log.WithFields(logrus.Fields{
		"bot":     bot.ID,
		"reason":  reason,
		"balance": account.Balance,
	}).Error("Account blown; bot killed")
	return nil
}
