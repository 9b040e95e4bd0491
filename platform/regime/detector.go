package regime

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BarSource serves the daily window the detector classifies. *bars.Cache
// satisfies it.
type BarSource interface {
	GetBars(ctx context.Context, req bars.Request) (*bars.Result, error)
}

// MacroSource reports the economy-wide regime. Implementations wrap an
// external feed; detection runs fine without one.
type MacroSource interface {
	MacroRegime(ctx context.Context) (MacroRegime, error)
}

// Detector classifies symbols on demand, holding each snapshot for the
// configured TTL so callers in a hot loop share one classification.
type Detector struct {
	source BarSource
	macro  MacroSource

	snapshots *cache.Cache
	bursts    *cache.Cache
}

// NewDetector builds a detector over the given bar source. macro may be
// nil; macro-dependent unified labels then collapse to their expansion
// defaults.
func NewDetector(source BarSource, macro MacroSource) *Detector {
	cfg := params.Platform()
	return &Detector{
		source:    source,
		macro:     macro,
		snapshots: cache.New(cfg.RegimeCacheTTL, cfg.RegimeCacheTTL),
		bursts:    cache.New(cfg.RegimeBurstCooldown, cfg.RegimeBurstCooldown),
	}
}

// Detect classifies one symbol, serving the cached snapshot when a fresh
// one exists. now anchors the lookback window.
func (d *Detector) Detect(ctx context.Context, symbol string, now time.Time) (*Snapshot, error) {
	if v, ok := d.snapshots.Get(symbol); ok {
		snap, ok := v.(*Snapshot)
		if !ok {
			return nil, errors.New("could not convert to regime snapshot type")
		}
		return snap, nil
	}

	res, err := d.source.GetBars(ctx, bars.Request{
		Symbol:      symbol,
		Timeframe:   bars.TF1d,
		SessionMode: types.SessionFull,
		Start:       now.AddDate(0, 0, -params.Platform().RegimeLookbackDays),
		End:         now,
		TraceID:     "regime:" + symbol,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not load daily bars for %s", symbol)
	}

	feats := ComputeFeatures(res.Bars)
	market := ClassifyMarket(feats)

	macro := MacroUnknown
	if d.macro != nil {
		m, err := d.macro.MacroRegime(ctx)
		if err != nil {
			log.WithError(err).WithField("symbol", symbol).Warn("Macro source unavailable, classifying market-only")
		} else {
			macro = m
		}
	}

	snap := &Snapshot{
		Symbol:     symbol,
		Market:     market,
		Macro:      macro,
		Unified:    Unify(market, macro, feats),
		Features:   feats,
		AssessedAt: now,
	}
	d.snapshots.Set(symbol, snap, cache.DefaultExpiration)
	regimeDetections.WithLabelValues(string(snap.Unified)).Inc()
	log.WithFields(logrus.Fields{
		"symbol":  symbol,
		"market":  market,
		"macro":   macro,
		"unified": snap.Unified,
	}).Debug("Classified market regime")
	return snap, nil
}

// Guidance classifies the symbol and returns its playbook in one call.
func (d *Detector) Guidance(ctx context.Context, symbol string, now time.Time) (*Snapshot, Guidance, error) {
	snap, err := d.Detect(ctx, symbol, now)
	if err != nil {
		return nil, Guidance{}, err
	}
	return snap, GuidanceFor(snap.Unified), nil
}

// ShouldTriggerResearch reports whether a regime change warrants a research
// burst, claiming the symbol's cooldown when it does. The claim holds for
// the full cooldown regardless of further flips, so a whipsawing tape
// cannot stampede the research budget.
func (d *Detector) ShouldTriggerResearch(symbol string, previous, current UnifiedRegime) bool {
	if current == previous || current == Unknown {
		return false
	}
	if _, held := d.bursts.Get(symbol); held {
		return false
	}
	d.bursts.Set(symbol, current, cache.DefaultExpiration)
	researchBursts.Inc()
	log.WithFields(logrus.Fields{
		"symbol": symbol,
		"from":   previous,
		"to":     current,
	}).Info("Regime change cleared research cooldown")
	return true
}
