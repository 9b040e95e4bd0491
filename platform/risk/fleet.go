package risk

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fleetEntityID keys fleet-scoped audit entries. The fleet is a singleton.
const fleetEntityID = "fleet"

// Violation rule names.
const (
	RuleFleetContracts = "fleetContractLimit"
	RuleFleetNotional  = "fleetNotionalLimit"
	RuleFleetDrawdown  = "fleetDrawdown"
	RuleSectorExposure = "sectorConcentration"
	RuleSymbolBotCount = "symbolBotCount"
)

// Liquidator submits exit orders for positions the fleet engine marks during
// an EMERGENCY. The broker adapter implements it; a nil liquidator leaves
// positions marked in the database for a later sweep.
type Liquidator interface {
	SubmitExit(ctx context.Context, p *types.Position) error
}

// FleetEngine is the singleton that aggregates fleet exposure and drives the
// kill-switch tier. All reads and the tier decision happen on one scheduled
// task; consumers read the published state without locking.
type FleetEngine struct {
	db         iface.Database
	audits     *audit.Service
	liquidator Liquidator
	state      atomic.Pointer[types.FleetRiskState]
}

// NewFleetEngine creates the fleet engine. The liquidator may be nil.
func NewFleetEngine(database iface.Database, audits *audit.Service, liq Liquidator) *FleetEngine {
	f := &FleetEngine{db: database, audits: audits, liquidator: liq}
	f.state.Store(&types.FleetRiskState{
		Tier:          types.TierNormal,
		TierEnteredAt: time.Now().UTC(),
	})
	return f
}

// State returns the last published assessment. The returned value is
// immutable; every cycle publishes a fresh struct.
func (f *FleetEngine) State() *types.FleetRiskState {
	return f.state.Load()
}

// CanOpenPosition reports whether fleet-wide restrictions permit opening new
// positions. SOFT and above block all opens; exits remain allowed until
// HARD pauses the bots outright.
func (f *FleetEngine) CanOpenPosition() bool {
	return f.State().Tier == types.TierNormal
}

// fleetLimits are the violation thresholds for one cycle, after applying
// any active global overrides.
type fleetLimits struct {
	maxContracts   float64
	maxNotional    float64
	ddWarning      float64
	ddSoft         float64
	ddHard         float64
	sectorLimit    float64
	symbolBotLimit float64
}

func (f *FleetEngine) limits(ctx context.Context, now time.Time) fleetLimits {
	cfg := params.Platform()
	l := fleetLimits{
		maxContracts:   float64(cfg.FleetMaxContracts),
		maxNotional:    cfg.FleetMaxNotional,
		ddWarning:      cfg.FleetDrawdownWarning,
		ddSoft:         cfg.FleetDrawdownSoft,
		ddHard:         cfg.FleetDrawdownHard,
		sectorLimit:    cfg.SectorExposureLimit,
		symbolBotLimit: float64(cfg.SymbolBotLimit),
	}
	if f.audits == nil {
		return l
	}
	overrides, err := f.audits.ActiveOverrides(ctx, now)
	if err != nil {
		log.WithError(err).Warn("Could not derive fleet risk overrides")
		return l
	}
	l.maxContracts = resolveLimit(overrides, ParamFleetContracts, "", l.maxContracts)
	l.maxNotional = resolveLimit(overrides, ParamFleetNotional, "", l.maxNotional)
	l.sectorLimit = resolveLimit(overrides, ParamSectorLimit, "", l.sectorLimit)
	l.symbolBotLimit = resolveLimit(overrides, ParamSymbolBotLimit, "", l.symbolBotLimit)
	return l
}

// Assess runs one full fleet risk cycle: aggregate positions and accounts,
// evaluate violations, move the kill-switch tier, and publish the new state.
func (f *FleetEngine) Assess(ctx context.Context) (*types.FleetRiskState, error) {
	now := time.Now().UTC()
	positions, err := f.db.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not load open positions")
	}
	accounts, err := f.db.Accounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not load accounts")
	}

	exposure, symbolNotional, botsPerSymbol := buildExposure(positions)
	hhi := concentrationHHI(symbolNotional, exposure.NotionalDollars)
	sectorShare, topSector := maxSectorShare(exposure.PerSector, exposure.NotionalDollars)

	dailyPnl := decimal.Zero
	equity := decimal.Zero
	peak := decimal.Zero
	for _, a := range accounts {
		dailyPnl = dailyPnl.Add(a.DailyPnl)
		equity = equity.Add(a.Balance)
		peak = peak.Add(a.PeakEquity)
	}
	dd := drawdownPct(peak, equity)

	limits := f.limits(ctx, now)
	violations := evaluateViolations(limits, exposure, dd, sectorShare, topSector, botsPerSymbol)
	target := tierFor(violations)

	prev := f.State()
	next := &types.FleetRiskState{
		Tier:             prev.Tier,
		TierEnteredAt:    prev.TierEnteredAt,
		Exposure:         exposure,
		ConcentrationHHI: hhi,
		CorrelationRisk:  sectorShare,
		DailyPnl:         dailyPnl,
		CurrentEquity:    equity,
		PeakEquity:       peak,
		DrawdownPct:      dd,
		Violations:       violations,
		AssessedAt:       now,
	}

	f.recordNewViolations(ctx, prev.Violations, violations)

	switch {
	case target > prev.Tier:
		f.escalate(ctx, prev.Tier, target, next, positions, now)
	case prev.Tier > types.TierNormal && canHeal(dd, violations):
		f.healOneStep(ctx, prev.Tier, next, dd, now)
	default:
		next.SelfHealing = false
	}

	publishGauges(next)
	f.state.Store(next)
	return next, nil
}

// escalate moves the tier up, possibly several notches at once, and applies
// the transition actions for the target tier.
func (f *FleetEngine) escalate(ctx context.Context, from, to types.KillSwitchTier, next *types.FleetRiskState, positions []*types.Position, now time.Time) {
	next.Tier = to
	next.TierEnteredAt = now
	next.SelfHealing = false
	tierTransitions.WithLabelValues(from.String(), to.String()).Inc()
	f.recordFleetEvent(ctx, audit.EventFleetTierChanged, map[string]interface{}{
		"from":       from.String(),
		"to":         to.String(),
		"violations": next.Violations,
	})
	log.WithFields(logrus.Fields{
		"from":       from,
		"to":         to,
		"violations": len(next.Violations),
	}).Error("Fleet kill switch escalated")

	if to >= types.TierHard {
		f.pauseAllAccounts(ctx, now)
	}
	if to == types.TierEmergency {
		f.markAllForExit(ctx, positions, now)
	}
}

// healOneStep eases the tier one notch toward NORMAL.
func (f *FleetEngine) healOneStep(ctx context.Context, from types.KillSwitchTier, next *types.FleetRiskState, dd float64, now time.Time) {
	to := from.StepDown()
	next.Tier = to
	next.TierEnteredAt = now
	next.SelfHealing = to > types.TierNormal
	tierTransitions.WithLabelValues(from.String(), to.String()).Inc()
	f.recordFleetEvent(ctx, audit.EventFleetSelfHealed, map[string]interface{}{
		"from":        from.String(),
		"to":          to.String(),
		"drawdownPct": dd,
	})
	log.WithFields(logrus.Fields{
		"from":        from,
		"to":          to,
		"drawdownPct": dd,
	}).Info("Fleet restrictions eased one tier")
}

// canHeal reports whether this cycle may step the tier down: drawdown below
// the recovery threshold, a clean violation slate, and healing not disabled.
func canHeal(dd float64, violations []types.Violation) bool {
	if features.Get().DisableFleetSelfHealing {
		return false
	}
	return dd < params.Platform().FleetRecoveryDD && len(violations) == 0
}

// pauseAllAccounts pauses every active account. Failures are logged and the
// sweep continues; the tier itself already blocks new opens.
func (f *FleetEngine) pauseAllAccounts(ctx context.Context, now time.Time) {
	accounts, err := f.db.Accounts(ctx)
	if err != nil {
		log.WithError(err).Error("Could not list accounts to pause")
		return
	}
	paused := 0
	for _, a := range accounts {
		if a.Status != types.AccountActive {
			continue
		}
		a.Status = types.AccountPaused
		a.UpdatedAt = now
		if err := f.db.SaveAccount(ctx, a); err != nil {
			log.WithError(err).WithField("bot", a.BotID).Error("Could not pause account")
			continue
		}
		paused++
	}
	if paused > 0 {
		log.WithField("count", paused).Warn("Paused all active accounts")
	}
}

// markAllForExit flags every open position for liquidation and, when a
// liquidator is wired, submits the exits. Each marked position is an audit
// event of its own.
func (f *FleetEngine) markAllForExit(ctx context.Context, positions []*types.Position, now time.Time) {
	marked := 0
	for _, p := range positions {
		if p.MarkedForExit {
			continue
		}
		p.MarkedForExit = true
		if err := f.db.SavePosition(ctx, p); err != nil {
			log.WithError(err).WithField("position", p.ID).Error("Could not mark position for exit")
			continue
		}
		marked++
		entry, err := audit.NewEntry(audit.EventPositionMarkedForExit, audit.EntityPosition, p.ID,
			audit.ActorSystem, actorEngine, map[string]interface{}{
				"botId":    p.BotID,
				"symbol":   p.Symbol,
				"quantity": p.Quantity,
			})
		if err == nil {
			if _, recErr := f.audits.Record(ctx, entry); recErr != nil {
				log.WithError(recErr).WithField("position", p.ID).Error("Could not record exit mark")
			}
		}
		if f.liquidator != nil {
			if err := f.liquidator.SubmitExit(ctx, p); err != nil {
				log.WithError(err).WithField("position", p.ID).Error("Could not submit emergency exit")
			}
		}
	}
	if marked > 0 {
		log.WithField("count", marked).Error("Marked all open positions for exit")
	}
}

// recordNewViolations appends a RISK_VIOLATION event for each rule that was
// not already violated last cycle. Persisting violations re-fire only after
// they clear.
func (f *FleetEngine) recordNewViolations(ctx context.Context, prev, current []types.Violation) {
	known := make(map[string]bool, len(prev))
	for _, v := range prev {
		known[v.Rule] = true
	}
	for _, v := range current {
		violationsTotal.WithLabelValues(v.Rule).Inc()
		if known[v.Rule] {
			continue
		}
		f.recordFleetEvent(ctx, audit.EventRiskViolation, v)
	}
}

func (f *FleetEngine) recordFleetEvent(ctx context.Context, eventType string, payload interface{}) {
	if f.audits == nil {
		return
	}
	entry, err := audit.NewEntry(eventType, audit.EntityFleet, fleetEntityID, audit.ActorSystem, actorEngine, payload)
	if err != nil {
		log.WithError(err).WithField("event", eventType).Error("Could not build fleet audit entry")
		return
	}
	if _, err := f.audits.Record(ctx, entry); err != nil {
		log.WithError(err).WithField("event", eventType).Error("Could not record fleet audit entry")
	}
}

// buildExposure aggregates open positions into the exposure snapshot plus
// the per-symbol notional map used for concentration and the distinct bot
// count per symbol.
func buildExposure(positions []*types.Position) (types.ExposureSnapshot, map[string]decimal.Decimal, map[string]int) {
	exp := types.ExposureSnapshot{
		NotionalDollars: decimal.Zero,
		PerSymbol:       make(map[string]int),
		PerSector:       make(map[string]decimal.Decimal),
		PerStage:        make(map[types.Stage]int),
	}
	symbolNotional := make(map[string]decimal.Decimal)
	symbolBots := make(map[string]map[string]bool)

	for _, p := range positions {
		qty := p.Quantity
		if qty < 0 {
			qty = -qty
		}
		signed := qty
		if p.Side == types.Short {
			signed = -qty
		}
		exp.NetContracts += signed
		exp.GrossContracts += qty
		exp.PerSymbol[p.Symbol] += qty
		exp.PerStage[p.Stage] += qty

		notional := decimal.Zero
		if inst, err := instruments.Get(p.Symbol); err == nil {
			notional = p.Notional(inst.PointValue)
		} else {
			log.WithField("symbol", p.Symbol).Warn("Unknown instrument in open positions; notional uncounted")
		}
		exp.NotionalDollars = exp.NotionalDollars.Add(notional)
		symbolNotional[p.Symbol] = symbolNotional[p.Symbol].Add(notional)

		sector := p.Sector
		if sector == "" {
			if inst, err := instruments.Get(p.Symbol); err == nil {
				sector = inst.Sector
			} else {
				sector = "UNKNOWN"
			}
		}
		exp.PerSector[sector] = exp.PerSector[sector].Add(notional)

		if symbolBots[p.Symbol] == nil {
			symbolBots[p.Symbol] = make(map[string]bool)
		}
		symbolBots[p.Symbol][p.BotID] = true
	}

	botsPerSymbol := make(map[string]int, len(symbolBots))
	for sym, bots := range symbolBots {
		botsPerSymbol[sym] = len(bots)
	}
	return exp, symbolNotional, botsPerSymbol
}

// concentrationHHI is the Herfindahl index over per-symbol notional shares,
// 0 when nothing is open through 1 for a single-symbol book.
func concentrationHHI(symbolNotional map[string]decimal.Decimal, total decimal.Decimal) float64 {
	if total.Sign() <= 0 {
		return 0
	}
	hhi := 0.0
	for _, n := range symbolNotional {
		share, _ := n.Div(total).Float64()
		hhi += share * share
	}
	return hhi
}

// maxSectorShare returns the largest single-sector share of fleet notional
// and the sector holding it.
func maxSectorShare(perSector map[string]decimal.Decimal, total decimal.Decimal) (float64, string) {
	if total.Sign() <= 0 {
		return 0, ""
	}
	best := 0.0
	sector := ""
	for s, n := range perSector {
		share, _ := n.Div(total).Float64()
		if share > best {
			best = share
			sector = s
		}
	}
	return best, sector
}

func drawdownPct(peak, current decimal.Decimal) float64 {
	if peak.Sign() <= 0 {
		return 0
	}
	dd, _ := peak.Sub(current).Div(peak).Mul(hundred).Float64()
	if dd < 0 {
		return 0
	}
	return dd
}

// evaluateViolations checks every fleet limit. Drawdown reports a single
// violation at its highest matched tier.
func evaluateViolations(l fleetLimits, exp types.ExposureSnapshot, dd, sectorShare float64, topSector string, botsPerSymbol map[string]int) []types.Violation {
	var out []types.Violation
	if float64(exp.GrossContracts) > l.maxContracts {
		out = append(out, types.Violation{
			Rule:     RuleFleetContracts,
			Severity: types.ViolationCritical,
			Message:  "fleet gross contracts above limit",
			Value:    float64(exp.GrossContracts),
			Limit:    l.maxContracts,
		})
	}
	notional, _ := exp.NotionalDollars.Float64()
	if notional > l.maxNotional {
		out = append(out, types.Violation{
			Rule:     RuleFleetNotional,
			Severity: types.ViolationCritical,
			Message:  "fleet notional exposure above limit",
			Value:    notional,
			Limit:    l.maxNotional,
		})
	}
	switch {
	case dd > l.ddHard:
		out = append(out, types.Violation{
			Rule: RuleFleetDrawdown, Severity: types.ViolationEmergency,
			Message: "fleet drawdown past emergency threshold", Value: dd, Limit: l.ddHard,
		})
	case dd > l.ddSoft:
		out = append(out, types.Violation{
			Rule: RuleFleetDrawdown, Severity: types.ViolationCritical,
			Message: "fleet drawdown past hard-restriction threshold", Value: dd, Limit: l.ddSoft,
		})
	case dd > l.ddWarning:
		out = append(out, types.Violation{
			Rule: RuleFleetDrawdown, Severity: types.ViolationWarning,
			Message: "fleet drawdown past warning threshold", Value: dd, Limit: l.ddWarning,
		})
	}
	if sectorShare > l.sectorLimit {
		out = append(out, types.Violation{
			Rule:     RuleSectorExposure,
			Severity: types.ViolationWarning,
			Message:  "sector " + topSector + " holds too large a share of fleet notional",
			Value:    sectorShare,
			Limit:    l.sectorLimit,
		})
	}
	for sym, count := range botsPerSymbol {
		if float64(count) > l.symbolBotLimit {
			out = append(out, types.Violation{
				Rule:     RuleSymbolBotCount,
				Severity: types.ViolationWarning,
				Message:  "too many bots hold positions on " + sym,
				Value:    float64(count),
				Limit:    l.symbolBotLimit,
			})
		}
	}
	return out
}

// tierFor maps the violation slate to a kill-switch tier: any EMERGENCY
// violation demands EMERGENCY, CRITICAL demands at least HARD, WARNING at
// least SOFT.
func tierFor(violations []types.Violation) types.KillSwitchTier {
	tier := types.TierNormal
	for _, v := range violations {
		switch v.Severity {
		case types.ViolationEmergency:
			return types.TierEmergency
		case types.ViolationCritical:
			if tier < types.TierHard {
				tier = types.TierHard
			}
		case types.ViolationWarning:
			if tier < types.TierSoft {
				tier = types.TierSoft
			}
		}
	}
	return tier
}
