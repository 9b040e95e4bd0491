package evolution

import (
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// crossAverageP is the probability a float parameter blends both parents
// instead of taking one side.
const crossAverageP = 0.3

// Crossover breeds one child config from two parents over a shared space.
// Each parameter is a coin flip between parents, except float parameters,
// which take a randomly weighted average of both effective values 30% of
// the time. Keys outside the space inherit from parent A untouched, and a
// parameter absent from both parents stays absent.
func (m *Mutator) Crossover(a, b types.Config, space []ParamSpec) types.Config {
	out := a.Copy()
	for _, spec := range space {
		av, aok := a[spec.Name]
		bv, bok := b[spec.Name]
		if !aok && !bok {
			continue
		}
		if spec.Type == TypeFloat && m.rng.Bool(crossAverageP) {
			w := m.rng.Float64()
			out[spec.Name] = w*floatValue(av, spec) + (1-w)*floatValue(bv, spec)
			continue
		}
		if m.rng.Bool(0.5) {
			if bok {
				out[spec.Name] = bv
			} else {
				// Taking parent B's side means taking its absence too.
				delete(out, spec.Name)
			}
		}
	}
	return out
}
