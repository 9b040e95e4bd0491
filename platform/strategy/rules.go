package strategy

import (
	"fmt"
	"strings"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/hashutil"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// RulesVersion stamps every built rule set and every trade it produces.
// Bump it whenever a predicate, confirmation, or default changes meaning.
const RulesVersion = "rules-v2"

// EntryRule holds the predicate family and its thresholds. Only the fields
// the family reads are populated; the rest stay zero and are omitted from
// the canonical serialization.
type EntryRule struct {
	Type EntryCondition `json:"type"`

	LookbackBars           int     `json:"lookbackBars,omitempty"`
	BreakoutThresholdTicks float64 `json:"breakoutThresholdTicks,omitempty"`
	RSIOversold            float64 `json:"rsiOversold,omitempty"`
	RSIOverbought          float64 `json:"rsiOverbought,omitempty"`
	VWAPDeviationATR       float64 `json:"vwapDeviationAtr,omitempty"`
	VWAPBandTicks          float64 `json:"vwapBandTicks,omitempty"`
	RequireReclaim         bool    `json:"requireReclaim,omitempty"`
	GapThresholdATR        float64 `json:"gapThresholdAtr,omitempty"`
	MomentumTicks          float64 `json:"momentumTicks,omitempty"`
	RangeMaxATR            float64 `json:"rangeMaxAtr,omitempty"`
	BandFraction           float64 `json:"bandFraction,omitempty"`
}

// Confirmations run after the entry predicate fires; any failure rejects
// the signal. Zero values disable a check.
type Confirmations struct {
	VolumeMultiple      float64 `json:"volumeMultiple,omitempty"`      // Bar volume vs 20-bar average.
	RequireTrendSide    bool    `json:"requireTrendSide,omitempty"`    // Close on the signal side of the slow EMA.
	MomentumTicks       float64 `json:"momentumTicks,omitempty"`       // Minimum |momentum| in ticks.
	RequireMomentumSign bool    `json:"requireMomentumSign,omitempty"` // Momentum sign must agree with the side.
	MaxATRTicks         float64 `json:"maxAtrTicks,omitempty"`         // Volatility ceiling.
}

// Invalidations run last and veto otherwise-confirmed signals.
type Invalidations struct {
	MinutesBeforeClose int     `json:"minutesBeforeClose,omitempty"` // No fresh entries this close to the bell.
	MinATRTicks        float64 `json:"minAtrTicks,omitempty"`        // Dead-tape floor.
	MaxBarsSinceOpen   int     `json:"maxBarsSinceOpen,omitempty"`   // Gap trades only make sense early in the day.
}

// TrailingStop arms after a position moves ActivationTicks in its favor and
// then trails at a fixed TrailTicks distance. The stop never loosens.
type TrailingStop struct {
	ActivationTicks float64 `json:"activationTicks"`
	TrailTicks      float64 `json:"trailTicks"`
}

// ExitRules order is fixed by the executor: stop, target, trail, time.
type ExitRules struct {
	StopLossTicks   float64       `json:"stopLossTicks"`
	TakeProfitTicks float64       `json:"takeProfitTicks"`
	Trailing        *TrailingStop `json:"trailing,omitempty"`
	TimeStopBars    int           `json:"timeStopBars,omitempty"`
}

// RiskRules is the per-trade risk block.
type RiskRules struct {
	MaxPositionSize int     `json:"maxPositionSize"`
	SlippageTicks   float64 `json:"slippageTicks"`
}

// StrategyRules is the complete derived rule set for one backtest. It is
// built fresh per session from the archetype and the bot's parameters, and
// its canonical hash is stored on the session for provenance.
type StrategyRules struct {
	Version       string        `json:"version"`
	Archetype     string        `json:"archetype"`
	Entry         EntryRule     `json:"entry"`
	Confirmations Confirmations `json:"confirmations"`
	Invalidations Invalidations `json:"invalidations"`
	Exits         ExitRules     `json:"exits"`
	Risk          RiskRules     `json:"risk"`
	Session       SessionRules  `json:"session"`
}

// archetypeDefaults carries the catalog's baseline parameters. Everything
// here is overridable per bot through its strategy config.
type archetypeDefaults struct {
	entry      EntryRule
	confirm    Confirmations
	invalidate Invalidations
	tpMult     float64 // Take profit as a multiple of the stop.
	timeStop   int     // Bars.
}

var ruleDefaults = map[EntryCondition]archetypeDefaults{
	Breakout: {
		entry:      EntryRule{LookbackBars: 20, BreakoutThresholdTicks: 4},
		confirm:    Confirmations{VolumeMultiple: 1.2, RequireTrendSide: true, RequireMomentumSign: true},
		invalidate: Invalidations{MinutesBeforeClose: 15, MinATRTicks: 2},
		tpMult:     2.0,
		timeStop:   48,
	},
	MeanReversion: {
		entry:      EntryRule{RSIOversold: 30, RSIOverbought: 70, VWAPDeviationATR: 1.5},
		confirm:    Confirmations{MaxATRTicks: 120},
		invalidate: Invalidations{MinutesBeforeClose: 20, MinATRTicks: 2},
		tpMult:     1.5,
		timeStop:   36,
	},
	VWAPTouch: {
		entry:      EntryRule{VWAPBandTicks: 8, RequireReclaim: true},
		confirm:    Confirmations{MaxATRTicks: 80},
		invalidate: Invalidations{MinutesBeforeClose: 20, MinATRTicks: 2},
		tpMult:     1.5,
		timeStop:   24,
	},
	TrendContinuation: {
		// Momentum agreement lives in the predicate so the TRIALS waiver
		// can reach it; the confirmation block must not re-impose it.
		entry:      EntryRule{MomentumTicks: 0},
		confirm:    Confirmations{RequireTrendSide: true},
		invalidate: Invalidations{MinutesBeforeClose: 15, MinATRTicks: 2},
		tpMult:     2.5,
		timeStop:   60,
	},
	GapFade: {
		entry:      EntryRule{GapThresholdATR: 1.0},
		confirm:    Confirmations{MaxATRTicks: 150},
		invalidate: Invalidations{MinutesBeforeClose: 30, MinATRTicks: 2, MaxBarsSinceOpen: 24},
		tpMult:     1.5,
		timeStop:   36,
	},
	GapFill: {
		entry:      EntryRule{GapThresholdATR: 1.5},
		confirm:    Confirmations{MaxATRTicks: 150},
		invalidate: Invalidations{MinutesBeforeClose: 30, MinATRTicks: 2, MaxBarsSinceOpen: 36},
		tpMult:     2.0,
		timeStop:   48,
	},
	Reversal: {
		entry:      EntryRule{LookbackBars: 20, RSIOversold: 25, RSIOverbought: 75},
		confirm:    Confirmations{VolumeMultiple: 1.3},
		invalidate: Invalidations{MinutesBeforeClose: 20, MinATRTicks: 2},
		tpMult:     2.0,
		timeStop:   36,
	},
	RangeScalp: {
		entry:      EntryRule{LookbackBars: 30, RangeMaxATR: 3.0, BandFraction: 0.25},
		confirm:    Confirmations{MaxATRTicks: 60},
		invalidate: Invalidations{MinutesBeforeClose: 15, MinATRTicks: 1},
		tpMult:     1.0,
		timeStop:   12,
	},
	MomentumSurge: {
		entry:      EntryRule{MomentumTicks: 8},
		confirm:    Confirmations{VolumeMultiple: 1.5, RequireTrendSide: true},
		invalidate: Invalidations{MinutesBeforeClose: 15, MinATRTicks: 2},
		tpMult:     2.0,
		timeStop:   36,
	},
}

// Build derives the full rule set for a bot under an archetype. Parameters
// come from the bot's strategy config with catalog defaults filling the
// gaps; the risk block comes from the bot's risk config and is mandatory.
func Build(arch Archetype, bot *types.Bot) (*StrategyRules, error) {
	d, ok := ruleDefaults[arch.EntryCondition]
	if !ok {
		return nil, errclass.Newf(errclass.ArchetypeNotImplemented,
			"archetype %s has no rule defaults", arch.ID)
	}
	cfg := bot.StrategyConfig

	entry := d.entry
	entry.Type = arch.EntryCondition
	entry.LookbackBars = cfg.Int("lookbackBars", entry.LookbackBars)
	entry.BreakoutThresholdTicks = cfg.Float("breakoutThresholdTicks", entry.BreakoutThresholdTicks)
	entry.RSIOversold = cfg.Float("rsiOversold", entry.RSIOversold)
	entry.RSIOverbought = cfg.Float("rsiOverbought", entry.RSIOverbought)
	entry.VWAPDeviationATR = cfg.Float("vwapDeviationAtr", entry.VWAPDeviationATR)
	entry.VWAPBandTicks = cfg.Float("vwapBandTicks", entry.VWAPBandTicks)
	entry.RequireReclaim = cfg.Bool("requireReclaim", entry.RequireReclaim)
	entry.GapThresholdATR = cfg.Float("gapThresholdAtr", entry.GapThresholdATR)
	entry.MomentumTicks = cfg.Float("momentumTicks", entry.MomentumTicks)
	entry.RangeMaxATR = cfg.Float("rangeMaxAtr", entry.RangeMaxATR)
	entry.BandFraction = cfg.Float("bandFraction", entry.BandFraction)

	confirm := d.confirm
	confirm.VolumeMultiple = cfg.Float("volumeMultiple", confirm.VolumeMultiple)
	confirm.MomentumTicks = cfg.Float("confirmMomentumTicks", confirm.MomentumTicks)
	confirm.MaxATRTicks = cfg.Float("maxAtrTicks", confirm.MaxATRTicks)

	invalidate := d.invalidate
	invalidate.MinutesBeforeClose = cfg.Int("minutesBeforeClose", invalidate.MinutesBeforeClose)
	invalidate.MinATRTicks = cfg.Float("minAtrTicks", invalidate.MinATRTicks)
	invalidate.MaxBarsSinceOpen = cfg.Int("maxBarsSinceOpen", invalidate.MaxBarsSinceOpen)

	stop := bot.StopLossTicks()
	if stop <= 0 {
		return nil, errclass.Newf(errclass.InvalidStrategy,
			"bot %s risk config is missing a positive stopLossTicks", bot.ID)
	}
	maxPos := int(bot.MaxPositionSize())
	if maxPos < 1 {
		return nil, errclass.Newf(errclass.InvalidStrategy,
			"bot %s risk config is missing maxPositionSize", bot.ID)
	}
	exits := ExitRules{
		StopLossTicks:   stop,
		TakeProfitTicks: cfg.Float("takeProfitTicks", stop*d.tpMult),
		TimeStopBars:    cfg.Int("timeStopBars", d.timeStop),
	}
	if exits.TakeProfitTicks <= 0 {
		return nil, errclass.Newf(errclass.InvalidStrategy,
			"bot %s has a non-positive takeProfitTicks", bot.ID)
	}
	if act, trail := cfg.Float("trailingActivationTicks", 0), cfg.Float("trailingDistanceTicks", 0); act > 0 && trail > 0 {
		exits.Trailing = &TrailingStop{ActivationTicks: act, TrailTicks: trail}
	}

	session, err := sessionForMode(bot)
	if err != nil {
		return nil, err
	}

	return &StrategyRules{
		Version:       RulesVersion,
		Archetype:     arch.ID,
		Entry:         entry,
		Confirmations: confirm,
		Invalidations: invalidate,
		Exits:         exits,
		Risk: RiskRules{
			MaxPositionSize: maxPos,
			SlippageTicks:   cfg.Float("slippageTicks", 1),
		},
		Session: session,
	}, nil
}

// Hash returns the SHA-256 of the canonical serialization. Two sessions
// with equal hashes ran byte-identical rules.
func (r *StrategyRules) Hash() (string, error) {
	h, err := hashutil.CanonicalHashHex(r)
	if err != nil {
		return "", errclass.Wrap(errclass.CalculationError, err, "could not hash rules")
	}
	return h, nil
}

// ActualEntryCondition reports the predicate family the built rules will
// evaluate. Compared against the catalog's expected condition to detect
// drift between catalog and builder.
func (r *StrategyRules) ActualEntryCondition() EntryCondition {
	return r.Entry.Type
}

// Summary renders a one-line human description stored on the session row.
func (r *StrategyRules) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]", r.Entry.Type, r.Archetype)
	switch r.Entry.Type {
	case Breakout:
		fmt.Fprintf(&b, " lookback=%d thr=%.1ft", r.Entry.LookbackBars, r.Entry.BreakoutThresholdTicks)
	case MeanReversion:
		fmt.Fprintf(&b, " rsi=%.0f/%.0f dev=%.1fatr", r.Entry.RSIOversold, r.Entry.RSIOverbought, r.Entry.VWAPDeviationATR)
	case VWAPTouch:
		fmt.Fprintf(&b, " band=%.1ft reclaim=%t", r.Entry.VWAPBandTicks, r.Entry.RequireReclaim)
	case TrendContinuation:
		b.WriteString(" ema9/20")
	case GapFade, GapFill:
		fmt.Fprintf(&b, " gap=%.1fatr", r.Entry.GapThresholdATR)
	case Reversal:
		fmt.Fprintf(&b, " lookback=%d rsi=%.0f/%.0f", r.Entry.LookbackBars, r.Entry.RSIOversold, r.Entry.RSIOverbought)
	case RangeScalp:
		fmt.Fprintf(&b, " lookback=%d maxrange=%.1fatr", r.Entry.LookbackBars, r.Entry.RangeMaxATR)
	case MomentumSurge:
		fmt.Fprintf(&b, " mom=%.1ft", r.Entry.MomentumTicks)
	}
	fmt.Fprintf(&b, " stop=%.1ft tp=%.1ft", r.Exits.StopLossTicks, r.Exits.TakeProfitTicks)
	if r.Exits.Trailing != nil {
		fmt.Fprintf(&b, " trail=%.1ft@%.1ft", r.Exits.Trailing.TrailTicks, r.Exits.Trailing.ActivationTicks)
	}
	if r.Exits.TimeStopBars > 0 {
		fmt.Fprintf(&b, " time=%dbars", r.Exits.TimeStopBars)
	}
	fmt.Fprintf(&b, " session=%s-%s", r.Session.RTHStart, r.Session.RTHEnd)
	return b.String()
}
