// Package backtest runs deterministic strategy backtests: a fail-closed
// nine-step pipeline that freezes a session's inputs, fetches and validates
// bars, derives and attests strategy rules, and then drives the rule
// evaluators bar by bar into trade logs, metrics, and an equity curve. For
// identical (botId, sessionId, config, bar set, rules) the output is
// bit-identical.
package backtest

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/hashutil"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/prng"
	"github.com/gauntletlabs/gauntlet/platform/strategy"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "backtest")

const (
	fillModelNextBarOpen = "NEXT_BAR_OPEN"
	samplingFullRange    = "FULL_RANGE"
)

// widenStages lists the stages whose RTH entry window is pulled inward at
// pipeline step 7. Stages above PAPER trade the full session.
var widenStages = map[types.Stage]bool{
	types.StageTrials: true,
	types.StagePaper:  true,
}

// Executor owns the backtest pipeline. The cache serves real-feed fetches;
// a nil cache degrades to direct provider calls, which tests use. The
// provider may be nil when only simulated runs are expected.
type Executor struct {
	db       iface.Database
	cache    *bars.Cache
	provider bars.Provider
}

// NewExecutor constructs an executor over the given persistence, bar cache,
// and market data provider.
func NewExecutor(db iface.Database, cache *bars.Cache, provider bars.Provider) *Executor {
	return &Executor{db: db, cache: cache, provider: provider}
}

// RunRequest identifies one backtest: the bot, the bar window, and the
// starting capital. SessionID may be set by replay callers; when empty a
// fresh ID is generated.
type RunRequest struct {
	Bot            *types.Bot
	SessionID      string
	Timeframe      bars.Timeframe
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
}

// Run executes the full pipeline for one request. The returned session is
// always the persisted row: completed with metrics on success, failed with a
// single classification otherwise. Malformed requests fail before any row is
// written.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*types.BacktestSession, error) {
	if req.Bot == nil {
		return nil, errors.New("run request has no bot")
	}
	if !req.Start.Before(req.End) {
		return nil, errors.Errorf("backtest range [%v, %v) is empty", req.Start, req.End)
	}
	if req.InitialCapital.Sign() <= 0 {
		return nil, errors.New("initial capital must be positive")
	}
	if _, err := bars.ParseTimeframe(string(req.Timeframe)); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	// A replay caller reuses a session ID; snapshot the stored row before
	// this run overwrites it so the determinism contract can be checked.
	var prior *types.BacktestSession
	if req.SessionID != "" {
		if p, err := e.db.BacktestSession(ctx, req.SessionID); err == nil {
			prior = p
		}
	}
	sess := &types.BacktestSession{
		ID:           sessionID,
		BotID:        req.Bot.ID,
		GenerationID: req.Bot.CurrentGenerationID,
		Status:       types.SessionRunning,
		StartedAt:    time.Now().UTC(),
	}

	started := time.Now()
	trades, err := e.execute(ctx, req, sess)
	backtestDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		backtestFailures.WithLabelValues(string(errclass.CodeOf(err))).Inc()
		e.failSession(ctx, sess, err)
		e.updateGeneration(ctx, req.Bot, sess)
		return sess, err
	}
	if err := e.db.CompleteBacktestSession(ctx, sess, trades); err != nil {
		return sess, errors.Wrap(err, "could not persist completed session")
	}
	backtestTradesCounter.Add(float64(len(trades)))
	checkReplayVariance(prior, sess)
	e.updateGeneration(ctx, req.Bot, sess)
	log.WithFields(logrus.Fields{
		"botId":     sess.BotID,
		"sessionId": sess.ID,
		"trades":    len(trades),
		"rulesHash": sess.RulesHash[:8],
		"profile":   sess.RulesProfileUsed,
	}).Info("Backtest completed")
	return sess, nil
}

// checkReplayVariance compares a replayed session's net PnL against the row
// it replaced. Identical inputs must reproduce identical output, so drift
// beyond the configured threshold is a determinism violation, not a result.
func checkReplayVariance(prior, sess *types.BacktestSession) {
	if prior == nil || prior.Status != types.SessionCompleted {
		return
	}
	oldPnl, newPnl := prior.Metrics.NetPnl, sess.Metrics.NetPnl
	if oldPnl == nil || newPnl == nil {
		return
	}
	base := decimal.Max(oldPnl.Abs(), decimal.NewFromInt(1))
	drift, _ := newPnl.Sub(*oldPnl).Abs().Div(base).Float64()
	threshold := params.Platform().VarianceAlertThreshold
	if drift > threshold {
		backtestVarianceAlerts.Inc()
		log.WithFields(logrus.Fields{
			"sessionId": sess.ID,
			"botId":     sess.BotID,
			"drift":     drift,
			"threshold": threshold,
		}).Warn("Replayed session net PnL drifted beyond the variance alert threshold")
	}
}

// execute runs pipeline steps one through nine and the bar loop, mutating
// sess as verdicts land. Any error fails the whole run; the caller persists
// the failure.
func (e *Executor) execute(ctx context.Context, req RunRequest, sess *types.BacktestSession) ([]*types.TradeLog, error) {
	bot := req.Bot

	// Step 1: the symbol must be in the registry before anything is priced.
	inst, err := instruments.Get(bot.Symbol)
	if err != nil {
		return nil, err
	}

	// Step 2: the running row freezes the run's identity before any data
	// moves. Seed and config hash bind the replay contract.
	seed := prng.SeedFor(bot.ID, sess.ID)
	configHash, err := configShapeHash(req)
	if err != nil {
		return nil, err
	}
	snap := &types.ConfigSnapshot{
		Seed:           seed,
		ConfigHash:     configHash,
		Symbol:         bot.Symbol,
		Timeframe:      string(req.Timeframe),
		StartTime:      req.Start.UTC(),
		EndTime:        req.End.UTC(),
		InitialCapital: req.InitialCapital,
		SessionFilter:  sessionFilterLabel(bot.SessionMode),
		FillModel:      fillModelNextBarOpen,
		SamplingMethod: samplingFullRange,
		Instrument: types.InstrumentSnapshot{
			Symbol:     inst.Symbol,
			PointValue: inst.PointValue,
			TickSize:   inst.TickSize,
			Commission: inst.Commission,
			Sector:     inst.Sector,
		},
		StrategyConfig: bot.StrategyConfig.Copy(),
	}
	sess.ConfigSnapshot = snap
	if err := e.db.SaveBacktestSession(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "could not write running session row")
	}

	// Step 3: bars, real feed preferred.
	result, err := e.fetchBars(ctx, bot, req, sess.ID, seed)
	if err != nil {
		return nil, err
	}
	snap.Provenance = result.Provenance
	series := result.Bars
	sess.TotalBarCount = len(series)

	// Step 4: fail-closed validation of every bar.
	if err := bars.Validate(bot.Symbol, series); err != nil {
		return nil, err
	}

	// Step 5: archetype resolution. No default: an unresolvable bot fails.
	arch, err := strategy.Resolve(bot)
	if err != nil {
		return nil, err
	}

	// Step 6: build rules and attest their provenance. The hash freezes
	// here; later session adjustments are recorded, never hashed.
	rules, err := strategy.Build(arch, bot)
	if err != nil {
		return nil, err
	}
	sess.ExpectedEntryCondition = string(arch.EntryCondition)
	sess.ActualEntryCondition = string(rules.ActualEntryCondition())
	if sess.ExpectedEntryCondition != sess.ActualEntryCondition {
		sess.ProvenanceStatus = types.ProvenanceMismatch
		return nil, errclass.Newf(errclass.StrategyProvenanceViolation,
			"built rules evaluate %s but archetype %s expects %s",
			sess.ActualEntryCondition, arch.ID, sess.ExpectedEntryCondition)
	}
	hash, err := rules.Hash()
	if err != nil {
		return nil, err
	}
	sess.RulesHash = hash
	sess.RulesSummary = rules.Summary()
	sess.ProvenanceStatus = types.ProvenanceVerified

	// Step 7: TRIALS and PAPER entries are pulled away from the open and
	// close. Only the day session moves; overnight and custom windows are
	// the operator's to set.
	cfg := params.Platform()
	if widenStages[bot.Stage] && bot.SessionMode == types.SessionRTH {
		rules.Session.Widen(cfg.TrialsSessionOpen, cfg.TrialsSessionClose)
		snap.OriginalOpen = rules.Session.OriginalStart
		snap.OriginalClose = rules.Session.OriginalEnd
	}
	snap.SessionOpen = rules.Session.RTHStart
	snap.SessionClose = rules.Session.RTHEnd

	// Step 8: profile selection. Relaxation reaches TRIALS and nothing else.
	profile := strategy.ProfileForStage(bot.Stage)

	// Step 9: session mode. FULL_24x5 bypasses the session filters.
	if bot.SessionMode == types.SessionFull {
		profile.SessionBypass = true
	}
	sess.RulesProfileUsed = profile.Profile
	sess.SessionModeUsed = bot.SessionMode
	sess.RelaxedFlagsApplied = profile.RelaxedFlags()

	trades, inSession := runLoop(sess, inst, rules, profile, series)
	sess.SessionFilterBarCount = inSession

	if len(trades) == 0 {
		return nil, errclass.Newf(errclass.ZeroTradesGenerated,
			"no trades over %d bars (%d in session)", len(series), inSession)
	}

	metrics, curve, err := aggregate(trades, req.InitialCapital)
	if err != nil {
		return nil, err
	}
	sess.Metrics = metrics
	sess.EquityCurve = curve
	sess.Status = types.SessionCompleted
	sess.CompletedAt = time.Now().UTC()
	return trades, nil
}

// fetchBars picks the data source and pulls the range. Real feeds go
// through the shared cache. Simulated runs call the generator directly: the
// walk is seeded per run identity, and a shared cache key would let one
// session's bars answer another session's request.
func (e *Executor) fetchBars(ctx context.Context, bot *types.Bot, req RunRequest, sessionID string, seed uint32) (*bars.Result, error) {
	if e.provider != nil && e.provider.Available() {
		freq := bars.FetchRequest{
			Symbol:    bot.Symbol,
			Timeframe: req.Timeframe,
			Start:     req.Start,
			End:       req.End,
			TraceID:   sessionID,
		}
		if e.cache == nil {
			fr, err := e.provider.FetchBars(ctx, freq)
			if err != nil {
				return nil, err
			}
			return &bars.Result{Bars: fr.Bars, Provenance: fr.Provenance}, nil
		}
		return e.cache.GetBars(ctx, bars.Request{
			Symbol:      bot.Symbol,
			Timeframe:   req.Timeframe,
			SessionMode: bot.SessionMode,
			Start:       req.Start,
			End:         req.End,
			TraceID:     sessionID,
			Provider:    e.provider,
		})
	}
	if !features.Get().AllowSimFallback {
		return nil, errclass.Newf(errclass.DataProvenanceViolation,
			"no market data provider is available and simulated fallback is disabled")
	}
	if bot.Stage != types.StageTrials {
		return nil, errclass.Newf(errclass.DataProvenanceViolation,
			"simulated bars are restricted to TRIALS; bot %s is %s", bot.ID, bot.Stage)
	}
	sim := bars.NewSimProvider(seed)
	fr, err := sim.FetchBars(ctx, bars.FetchRequest{
		Symbol:    bot.Symbol,
		Timeframe: req.Timeframe,
		Start:     req.Start,
		End:       req.End,
		TraceID:   sessionID,
	})
	if err != nil {
		return nil, err
	}
	return &bars.Result{Bars: fr.Bars, Provenance: fr.Provenance}, nil
}

// failSession stamps the single classifier verdict and flips the row to
// failed. Persistence here is best effort: a second failure while recording
// the first is logged, not raised.
func (e *Executor) failSession(ctx context.Context, sess *types.BacktestSession, runErr error) {
	sess.Status = types.SessionFailed
	sess.CompletedAt = time.Now().UTC()
	sess.ErrorClassification = classify(runErr)
	if err := e.db.SaveBacktestSession(ctx, sess); err != nil {
		log.WithError(err).WithField("sessionId", sess.ID).Error("Could not persist failed session")
	}
	if sess.ErrorClassification.ShouldHalt {
		log.WithFields(logrus.Fields{
			"botId":     sess.BotID,
			"sessionId": sess.ID,
			"code":      sess.ErrorClassification.Code,
		}).Error("Backtest halted")
	}
}

// classify renders the persisted classification for a failed run.
func classify(err error) *types.ErrorClassification {
	code := errclass.CodeOf(err)
	severity := "ERROR"
	switch errclass.ClassOf(code) {
	case errclass.HardFail:
		severity = "CRITICAL"
	case errclass.Warning:
		severity = "WARNING"
	}
	return &types.ErrorClassification{
		Code:       string(code),
		Severity:   severity,
		Message:    err.Error(),
		ShouldHalt: errclass.ClassOf(code) == errclass.HardFail,
	}
}

// updateGeneration is the post-commit baseline side effect. It never fails
// the run: the session row is already final, and a stale baseline is
// repairable while a rolled-back session is not.
func (e *Executor) updateGeneration(ctx context.Context, bot *types.Bot, sess *types.BacktestSession) {
	if bot.CurrentGenerationID == "" {
		return
	}
	gen, err := e.db.Generation(ctx, bot.CurrentGenerationID)
	if err != nil {
		log.WithError(err).WithField("generationId", bot.CurrentGenerationID).Warn("Could not load generation for baseline update")
		return
	}
	gen.BaselineBacktestID = sess.ID
	if sess.Status == types.SessionCompleted {
		gen.BaselineValid = sess.Metrics.TotalTrades >= params.Platform().BacktestBaselineMinTrades
		gen.BaselineFailureReason = ""
		gen.BaselineMetrics = baselineFrom(sess)
		// A generation with no trades must never inherit its parent's
		// numbers, so the live snapshot only moves on traded runs.
		if sess.Metrics.TotalTrades > 0 {
			gen.PerformanceSnapshot = baselineFrom(sess)
		}
	} else {
		gen.BaselineValid = false
		if sess.ErrorClassification != nil {
			gen.BaselineFailureReason = sess.ErrorClassification.Code
		}
	}
	if err := e.db.SaveGeneration(ctx, gen); err != nil {
		log.WithError(err).WithField("generationId", gen.ID).Warn("Could not save generation baseline")
	}
}

// baselineFrom copies the session metrics into a baseline snapshot stamped
// with the profile and session mode the run actually used.
func baselineFrom(sess *types.BacktestSession) *types.BaselineMetrics {
	m := sess.Metrics
	return &types.BaselineMetrics{
		TotalTrades:      m.TotalTrades,
		WinRate:          m.WinRate,
		NetPnl:           m.NetPnl,
		ProfitFactor:     m.ProfitFactor,
		Sharpe:           m.Sharpe,
		MaxDrawdownPct:   m.MaxDrawdownPct,
		Expectancy:       m.Expectancy,
		RulesProfileUsed: sess.RulesProfileUsed,
		SessionModeUsed:  sess.SessionModeUsed,
	}
}

// configShapeHash hashes the inputs that shape a backtest, truncated to 16
// hex characters. Bot identity is deliberately excluded: two bots with
// identical configs hash identically, and the seed already binds the run to
// its identity.
func configShapeHash(req RunRequest) (string, error) {
	shape := map[string]interface{}{
		"symbol":         req.Bot.Symbol,
		"timeframe":      string(req.Timeframe),
		"start":          req.Start.UTC().Format(time.RFC3339),
		"end":            req.End.UTC().Format(time.RFC3339),
		"initialCapital": req.InitialCapital.String(),
		"sessionMode":    string(req.Bot.SessionMode),
		"strategyConfig": req.Bot.StrategyConfig,
		"riskConfig":     req.Bot.RiskConfig,
	}
	h, err := hashutil.CanonicalHashHex(shape)
	if err != nil {
		return "", errclass.Wrap(errclass.CalculationError, err, "could not hash config shape")
	}
	return h[:16], nil
}

// sessionFilterLabel renders the snapshot's session-filter field: the
// customary "RTH" for the default day session, the raw mode otherwise.
func sessionFilterLabel(mode types.SessionMode) string {
	if mode == types.SessionRTH {
		return "RTH"
	}
	return string(mode)
}
