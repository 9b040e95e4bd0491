package risk

import (
	"context"
	"strings"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Override scopes. A bot-scoped override beats a global one for the same
// parameter; within a scope the most recently granted override wins because
// ActiveOverrides returns grants in chain order.
const (
	OverrideScopeGlobal = "global"
	overrideScopeBot    = "bot:"
)

// OverrideScopeBot returns the scope string targeting one bot.
func OverrideScopeBot(botID string) string {
	return overrideScopeBot + botID
}

// Parameter names an override may target. Unknown parameters are recorded on
// the chain but never consulted.
const (
	ParamDrawdownWarning  = "drawdownWarning"
	ParamDrawdownSoft     = "drawdownSoft"
	ParamDrawdownHard     = "drawdownHard"
	ParamDailyLossWarning = "dailyLossWarning"
	ParamDailyLossSoft    = "dailyLossSoft"
	ParamDailyLossHard    = "dailyLossHard"
	ParamVaRLimitFrac     = "varLimitFrac"
	ParamFleetContracts   = "fleetMaxContracts"
	ParamFleetNotional    = "fleetMaxNotional"
	ParamSectorLimit      = "sectorExposureLimit"
	ParamSymbolBotLimit   = "symbolBotLimit"
)

// Deriving active overrides walks the audit chain, so per-check callers read
// a short-lived cached view instead.
const (
	overrideCacheKey = "active"
	overrideCacheTTL = time.Minute
)

// limitFor resolves a risk limit: an active override scoped to the bot wins,
// then a global override, then the configured default.
func (e *Engine) limitFor(ctx context.Context, parameter, botID string, def float64, now time.Time) float64 {
	return resolveLimit(e.activeOverrides(ctx, now), parameter, botID, def)
}

func resolveLimit(overrides []*audit.RiskOverride, parameter, botID string, def float64) float64 {
	value := def
	scoped := false
	for _, o := range overrides {
		if o.Parameter != parameter {
			continue
		}
		switch {
		case botID != "" && o.Scope == OverrideScopeBot(botID):
			value = o.Value
			scoped = true
		case o.Scope == OverrideScopeGlobal && !scoped:
			value = o.Value
		}
	}
	return value
}

// activeOverrides returns the cached override view, refreshing it from the
// audit chain when stale. A failed refresh falls back to no overrides so a
// chain read error can never loosen a limit.
func (e *Engine) activeOverrides(ctx context.Context, now time.Time) []*audit.RiskOverride {
	if v, ok := e.overrides.Get(overrideCacheKey); ok {
		return v.([]*audit.RiskOverride)
	}
	if e.audits == nil {
		return nil
	}
	list, err := e.audits.ActiveOverrides(ctx, now)
	if err != nil {
		log.WithError(err).Warn("Could not derive active risk overrides")
		return nil
	}
	e.overrides.Set(overrideCacheKey, list, cache.DefaultExpiration)
	return list
}

// InvalidateOverrides drops the cached override view. Callers that grant or
// revoke an override use this so the next gate check sees it immediately.
func (e *Engine) InvalidateOverrides() {
	e.overrides.Delete(overrideCacheKey)
}

// errInvalidOverride rejects grants missing a parameter or scope.
var errInvalidOverride = errors.New("a risk override requires a parameter and a scope")

// GrantOverride appends a RISK_OVERRIDE event to the audit chain and
// invalidates the cached view. Scope is OverrideScopeGlobal or
// OverrideScopeBot(id).
func (e *Engine) GrantOverride(ctx context.Context, o *audit.RiskOverride) error {
	if o.Parameter == "" || o.Scope == "" {
		return errInvalidOverride
	}
	entityType, entityID := audit.EntityFleet, "fleet"
	if strings.HasPrefix(o.Scope, overrideScopeBot) {
		entityType, entityID = audit.EntityBot, strings.TrimPrefix(o.Scope, overrideScopeBot)
	}
	entry, err := audit.NewEntry(audit.EventRiskOverride, entityType, entityID, audit.ActorUser, o.GrantedBy, o)
	if err != nil {
		return err
	}
	if _, err := e.audits.Record(ctx, entry); err != nil {
		return err
	}
	e.InvalidateOverrides()
	log.WithFields(logrus.Fields{
		"override":  o.OverrideID,
		"scope":     o.Scope,
		"parameter": o.Parameter,
		"value":     o.Value,
		"expiresAt": o.ExpiresAt,
	}).Warn("Risk override granted")
	return nil
}

// RevokeOverride appends a RISK_OVERRIDE_REVOKED event referencing the grant.
func (e *Engine) RevokeOverride(ctx context.Context, overrideID, reason, revokedBy string) error {
	payload := &audit.RiskOverrideRevoked{OverrideID: overrideID, Reason: reason, RevokedBy: revokedBy}
	entry, err := audit.NewEntry(audit.EventRiskOverrideRevoked, audit.EntityFleet, "fleet", audit.ActorUser, revokedBy, payload)
	if err != nil {
		return err
	}
	if _, err := e.audits.Record(ctx, entry); err != nil {
		return err
	}
	e.InvalidateOverrides()
	return nil
}
