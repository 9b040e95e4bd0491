// Package prng provides the platform's seeded random source. Every place
// the platform consumes randomness during a backtest (simulated-bar
// fallback, window sampling, parameter mutation) draws from a Source seeded
// off the run's identity, so identical inputs replay to identical outputs.
//
// The generator is Mulberry32: 32 bits of state, one multiply-xor-shift
// round per draw. It is not cryptographically secure and must never be used
// for keys or tokens; its job is cheap, portable determinism.
package prng

import (
	"strconv"

	"github.com/gauntletlabs/gauntlet/platform/hashutil"
)

// Source is a deterministic random stream.
type Source struct {
	state uint32
}

// New returns a Source seeded with the given value.
func New(seed uint32) *Source {
	return &Source{state: seed}
}

// NewForRun derives the canonical per-run Source for a (botID, sessionID)
// pair: the first eight hex characters of sha256("botID:sessionID") parsed
// as a 32-bit seed.
func NewForRun(botID, sessionID string) *Source {
	return New(SeedFor(botID, sessionID))
}

// SeedFor computes the canonical 32-bit seed for a run identity.
func SeedFor(botID, sessionID string) uint32 {
	digest := hashutil.HashHex([]byte(botID + ":" + sessionID))
	n, err := strconv.ParseUint(digest[:8], 16, 32)
	if err != nil {
		// Eight hex characters always parse; reaching this means the digest
		// function itself is broken.
		panic("prng: unparseable seed digest: " + digest[:8])
	}
	return uint32(n)
}

// Float64 returns the next value in [0, 1).
func (s *Source) Float64() float64 {
	s.state += 0x6D2B79F5
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// Intn returns a value in [0, n). n must be positive.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("prng: Intn with non-positive n")
	}
	return int(s.Float64() * float64(n))
}

// Range returns a value in [lo, hi).
func (s *Source) Range(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// Norm returns an approximately standard-normal value via the sum of twelve
// uniforms. Exact normality does not matter here; reproducibility does.
func (s *Source) Norm() float64 {
	sum := 0.0
	for i := 0; i < 12; i++ {
		sum += s.Float64()
	}
	return sum - 6
}

// Bool returns true with probability p.
func (s *Source) Bool(p float64) bool {
	return s.Float64() < p
}
