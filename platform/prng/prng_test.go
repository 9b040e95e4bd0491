package prng

import (
	"testing"

	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
)

func TestSeedFor_Stable(t *testing.T) {
	// The seed is pinned by the hash contract; a change here breaks replay
	// of every historical session.
	assert.Equal(t, SeedFor("b1", "s1"), SeedFor("b1", "s1"))
	assert.NotEqual(t, SeedFor("b1", "s1"), SeedFor("b1", "s2"))
	assert.NotEqual(t, SeedFor("b1", "s1"), SeedFor("b2", "s1"))
}

func TestFloat64_DeterministicStream(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Float64(), b.Float64(), "draw %d diverged", i)
	}
}

func TestFloat64_Bounds(t *testing.T) {
	s := New(7)
	for i := 0; i < 10000; i++ {
		v := s.Float64()
		require.Equal(t, true, v >= 0 && v < 1, "draw %d out of range: %v", i, v)
	}
}

func TestIntn_CoversRange(t *testing.T) {
	s := New(3)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v := s.Intn(4)
		require.Equal(t, true, v >= 0 && v < 4)
		seen[v] = true
	}
	assert.Equal(t, 4, len(seen))
}

func TestNorm_RoughlyCentered(t *testing.T) {
	s := New(11)
	sum := 0.0
	const n = 10000
	for i := 0; i < n; i++ {
		sum += s.Norm()
	}
	mean := sum / n
	assert.Equal(t, true, mean > -0.1 && mean < 0.1, "mean drifted: %v", mean)
}
