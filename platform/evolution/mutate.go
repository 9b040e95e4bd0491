package evolution

import (
	"math"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/prng"
	"github.com/gauntletlabs/gauntlet/platform/regime"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// MutationType selects how parameter values move between generations.
type MutationType string

// Mutation types.
const (
	Gaussian    MutationType = "gaussian"
	Uniform     MutationType = "uniform"
	Boundary    MutationType = "boundary"
	Adaptive    MutationType = "adaptive"
	RegimeAware MutationType = "regime_aware"
)

// Default mutation pressure when neither the generation count nor the
// regime overrides it.
const (
	defaultRate     = 0.20
	defaultStrength = 0.25
)

// regimePressure overrides rate and strength for regime-aware mutation.
// Crisis regimes explore hard; compression regimes barely move.
var regimePressure = map[regime.UnifiedRegime]struct{ rate, strength float64 }{
	regime.HighVolCrisis:     {0.40, 0.50},
	regime.LowVolCompression: {0.05, 0.10},
	regime.BullExpansion:     {0.15, 0.20},
	regime.BullContraction:   {0.20, 0.25},
	regime.BearExpansion:     {0.25, 0.30},
	regime.BearRecession:     {0.30, 0.40},
	regime.SidewaysStable:    {0.10, 0.15},
	regime.Transition:        {0.30, 0.35},
}

// Options configures one mutation pass.
type Options struct {
	Type       MutationType
	Rate       float64 // Per-parameter mutation probability before weighting. Zero uses the default.
	Strength   float64 // Step size as a fraction of each parameter's span. Zero uses the default.
	Generation int     // Number of the generation being produced; drives adaptive decay.
	Regime     regime.UnifiedRegime
}

// Mutator draws every decision from one deterministic stream, so a seed
// plus a config plus a space reproduces the identical offspring.
type Mutator struct {
	rng *prng.Source
}

// NewMutator wraps a seeded source.
func NewMutator(rng *prng.Source) *Mutator {
	return &Mutator{rng: rng}
}

// Mutate returns a mutated copy of cfg over the given space plus the names
// of the parameters that changed. The input config is never modified; keys
// outside the space pass through untouched. At least one parameter changes
// whenever the space allows a change at all.
func (m *Mutator) Mutate(cfg types.Config, space []ParamSpec, opts Options) (types.Config, []string) {
	rate, strength := m.pressure(opts)
	out := cfg.Copy()
	var changed []string
	for _, spec := range space {
		if !m.rng.Bool(rate * spec.Weight) {
			continue
		}
		cur := out[spec.Name]
		next := m.mutateValue(cur, spec, opts.Type, strength)
		if sameValue(cur, next, spec) {
			continue
		}
		out[spec.Name] = next
		changed = append(changed, spec.Name)
	}

	// A pass that moved nothing would breed a clone of the parent. Force
	// draws until one parameter actually changes.
	for attempt := 0; len(changed) == 0 && attempt < 8 && len(space) > 0; attempt++ {
		spec := space[m.rng.Intn(len(space))]
		cur := out[spec.Name]
		next := m.mutateValue(cur, spec, opts.Type, strength)
		if sameValue(cur, next, spec) {
			continue
		}
		out[spec.Name] = next
		changed = append(changed, spec.Name)
	}
	return out, changed
}

// pressure resolves the effective rate and strength for a pass. Adaptive
// decays strength as the lineage matures so late generations refine instead
// of thrash; regime-aware replaces both with the regime's profile.
func (m *Mutator) pressure(opts Options) (rate, strength float64) {
	rate, strength = defaultRate, defaultStrength
	if opts.Rate > 0 {
		rate = opts.Rate
	}
	if opts.Strength > 0 {
		strength = opts.Strength
	}
	switch opts.Type {
	case Adaptive:
		cfg := params.Platform()
		strength *= math.Pow(cfg.MutationDecayBase,
			float64(opts.Generation)/float64(cfg.MutationDecayWindow))
	case RegimeAware:
		if p, ok := regimePressure[opts.Regime]; ok {
			rate, strength = p.rate, p.strength
		}
	}
	return rate, strength
}

func (m *Mutator) mutateValue(current interface{}, spec ParamSpec, typ MutationType, strength float64) interface{} {
	switch spec.Type {
	case TypeBoolean:
		return !boolValue(current, spec)
	case TypeEnum:
		return m.mutateEnum(current, spec)
	default:
		return m.mutateNumeric(current, spec, typ, strength)
	}
}

func (m *Mutator) mutateNumeric(current interface{}, spec ParamSpec, typ MutationType, strength float64) interface{} {
	cur := floatValue(current, spec)
	span := spec.Max - spec.Min
	var next float64
	switch typ {
	case Uniform:
		next = m.rng.Range(spec.Min, spec.Max)
	case Boundary:
		next = spec.Min
		if m.rng.Bool(0.5) {
			next = spec.Max
		}
	default:
		// Gaussian step around the current value. Adaptive and regime-aware
		// reuse it and differ only in the pressure they apply.
		next = cur + m.rng.Norm()*strength*span
	}
	next = clampFloat(next, spec.Min, spec.Max)
	if spec.Type == TypeInteger {
		next = math.Round(next)
	}
	return next
}

func (m *Mutator) mutateEnum(current interface{}, spec ParamSpec) interface{} {
	if len(spec.Values) < 2 {
		return current
	}
	cur := enumValue(current, spec)
	others := make([]string, 0, len(spec.Values)-1)
	for _, v := range spec.Values {
		if v != cur {
			others = append(others, v)
		}
	}
	return others[m.rng.Intn(len(others))]
}

// sameValue compares a candidate against the parameter's effective current
// value, treating an absent key as the default. Writing the default back
// into a config is not a mutation.
func sameValue(cur, next interface{}, spec ParamSpec) bool {
	switch spec.Type {
	case TypeBoolean:
		n, ok := next.(bool)
		return ok && boolValue(cur, spec) == n
	case TypeEnum:
		n, ok := next.(string)
		return ok && enumValue(cur, spec) == n
	default:
		n, ok := next.(float64)
		return ok && floatValue(cur, spec) == n
	}
}

func floatValue(v interface{}, spec ParamSpec) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	if d, ok := spec.Default.(float64); ok {
		return d
	}
	return spec.Min
}

func boolValue(v interface{}, spec ParamSpec) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	b, _ := spec.Default.(bool)
	return b
}

func enumValue(v interface{}, spec ParamSpec) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	s, _ := spec.Default.(string)
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
