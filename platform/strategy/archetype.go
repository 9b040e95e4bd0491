// Package strategy holds the fixed archetype catalog, the rules builder that
// turns an archetype plus a parameter map into executable StrategyRules, and
// the rule evaluators the backtest executor drives bar by bar. Rules are
// derived, never stored; their canonical hash attests which rules a session
// actually ran.
package strategy

import (
	"sort"
	"strings"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/instruments"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// EntryCondition is a canonical entry predicate family. The executor's
// predicate switch over this alphabet is exhaustive.
type EntryCondition string

// The canonical entry condition alphabet.
const (
	Breakout          EntryCondition = "BREAKOUT"
	MeanReversion     EntryCondition = "MEAN_REVERSION"
	VWAPTouch         EntryCondition = "VWAP_TOUCH"
	TrendContinuation EntryCondition = "TREND_CONTINUATION"
	GapFade           EntryCondition = "GAP_FADE"
	GapFill           EntryCondition = "GAP_FILL"
	Reversal          EntryCondition = "REVERSAL"
	RangeScalp        EntryCondition = "RANGE_SCALP"
	MomentumSurge     EntryCondition = "MOMENTUM_SURGE"
)

// Archetype is one entry in the fixed strategy catalog.
type Archetype struct {
	ID             string
	DisplayName    string
	EntryCondition EntryCondition
}

var catalog = map[string]Archetype{
	"breakout":           {ID: "breakout", DisplayName: "Range Breakout", EntryCondition: Breakout},
	"mean_reversion":     {ID: "mean_reversion", DisplayName: "RSI Mean Reversion", EntryCondition: MeanReversion},
	"vwap_touch":         {ID: "vwap_touch", DisplayName: "VWAP Touch", EntryCondition: VWAPTouch},
	"trend_continuation": {ID: "trend_continuation", DisplayName: "Trend Continuation", EntryCondition: TrendContinuation},
	"gap_fade":           {ID: "gap_fade", DisplayName: "Gap Fade", EntryCondition: GapFade},
	"gap_fill":           {ID: "gap_fill", DisplayName: "Gap Fill", EntryCondition: GapFill},
	"reversal":           {ID: "reversal", DisplayName: "Exhaustion Reversal", EntryCondition: Reversal},
	"range_scalp":        {ID: "range_scalp", DisplayName: "Range Scalp", EntryCondition: RangeScalp},
	"momentum_surge":     {ID: "momentum_surge", DisplayName: "Momentum Surge", EntryCondition: MomentumSurge},
}

// aliases maps normalized shorthand names seen in bot names and older
// configs onto catalog ids.
var aliases = map[string]string{
	"orb":             "breakout",
	"opening_range":   "breakout",
	"range_breakout":  "breakout",
	"meanrev":         "mean_reversion",
	"mean_rev":        "mean_reversion",
	"reversion":       "mean_reversion",
	"rsi_reversion":   "mean_reversion",
	"vwap":            "vwap_touch",
	"vwap_bounce":     "vwap_touch",
	"vwap_reversion":  "vwap_touch",
	"trend":           "trend_continuation",
	"trend_follow":    "trend_continuation",
	"trend_following": "trend_continuation",
	"pullback":        "trend_continuation",
	"fade":            "gap_fade",
	"gap":             "gap_fill",
	"exhaustion":      "reversal",
	"scalp":           "range_scalp",
	"range":           "range_scalp",
	"momentum":        "momentum_surge",
	"momo":            "momentum_surge",
	"surge":           "momentum_surge",
}

// partialKeys holds every catalog id and alias sorted longest-first, so a
// substring scan prefers "gap_fade" over the bare "gap" alias.
var partialKeys = func() []string {
	keys := make([]string, 0, len(catalog)+len(aliases))
	for id := range catalog {
		keys = append(keys, id)
	}
	for a := range aliases {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Catalog returns every archetype id in lexical order.
func Catalog() []string {
	out := make([]string, 0, len(catalog))
	for id := range catalog {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ByID looks an archetype up by canonical id or alias.
func ByID(id string) (Archetype, bool) {
	n := normalize(id)
	if a, ok := catalog[n]; ok {
		return a, true
	}
	if target, ok := aliases[n]; ok {
		return catalog[target], true
	}
	return Archetype{}, false
}

// IsKnown reports whether id resolves to a catalog archetype.
func IsKnown(id string) bool {
	_, ok := ByID(id)
	return ok
}

// normalize lowercases and collapses every non-alphanumeric run into a
// single underscore: "MNQ Gap-Fade v2" becomes "mnq_gap_fade_v2".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := true
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// lookup resolves one normalized candidate through the catalog, the alias
// table, instrument-prefix stripping, and finally a longest-key substring
// match.
func lookup(candidate string) (Archetype, bool) {
	if candidate == "" {
		return Archetype{}, false
	}
	if a, ok := catalog[candidate]; ok {
		return a, true
	}
	if target, ok := aliases[candidate]; ok {
		return catalog[target], true
	}
	for _, sym := range instruments.Symbols() {
		prefix := strings.ToLower(sym) + "_"
		if strings.HasPrefix(candidate, prefix) {
			stripped := strings.TrimPrefix(candidate, prefix)
			if a, ok := catalog[stripped]; ok {
				return a, true
			}
			if target, ok := aliases[stripped]; ok {
				return catalog[target], true
			}
		}
	}
	for _, key := range partialKeys {
		if strings.Contains(candidate, key) {
			if a, ok := catalog[key]; ok {
				return a, true
			}
			return catalog[aliases[key]], true
		}
	}
	return Archetype{}, false
}

// InferFromName resolves a free-form bot name to a catalog archetype. The
// name is normalized and looked up; on failure the lookup retries with the
// first whitespace token dropped, which handles names that lead with a
// symbol or a code word ("MNQ Gap Fade", "Atlas Momentum 7").
func InferFromName(name string) (Archetype, bool) {
	if a, ok := lookup(normalize(name)); ok {
		return a, true
	}
	fields := strings.Fields(name)
	if len(fields) > 1 {
		if a, ok := lookup(normalize(strings.Join(fields[1:], " "))); ok {
			return a, true
		}
	}
	return Archetype{}, false
}

// Resolve picks the archetype for a bot. Priority: stored archetype id,
// then an explicit "archetype" strategy parameter, then inference from the
// bot name. An explicit tag that is not in the catalog fails
// ARCHETYPE_NOT_IMPLEMENTED; a name that yields nothing fails
// ARCHETYPE_INFERENCE_FAILED. There is no default archetype.
func Resolve(bot *types.Bot) (Archetype, error) {
	if bot.ArchetypeID != "" {
		if a, ok := ByID(bot.ArchetypeID); ok {
			return a, nil
		}
		return Archetype{}, errclass.Newf(errclass.ArchetypeNotImplemented,
			"bot %s carries archetype %q which maps to no supported entry condition", bot.ID, bot.ArchetypeID)
	}
	if tag := bot.StrategyConfig.String("archetype", ""); tag != "" {
		if a, ok := ByID(tag); ok {
			return a, nil
		}
		return Archetype{}, errclass.Newf(errclass.ArchetypeNotImplemented,
			"bot %s config names archetype %q which maps to no supported entry condition", bot.ID, tag)
	}
	if a, ok := InferFromName(bot.Name); ok {
		return a, nil
	}
	return Archetype{}, errclass.Newf(errclass.ArchetypeInferenceFailed,
		"bot %s: name %q matches no known archetype", bot.ID, bot.Name)
}
