package regime

import (
	"context"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/pkg/errors"
)

type fakeBarSource struct {
	bars    []bars.Bar
	err     error
	fetches int
	lastReq bars.Request
}

func (f *fakeBarSource) GetBars(_ context.Context, req bars.Request) (*bars.Result, error) {
	f.fetches++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &bars.Result{Bars: f.bars}, nil
}

type staticMacro struct{ regime MacroRegime }

func (s staticMacro) MacroRegime(context.Context) (MacroRegime, error) { return s.regime, nil }

type failingMacro struct{}

func (failingMacro) MacroRegime(context.Context) (MacroRegime, error) {
	return "", errors.New("macro feed offline")
}

func TestDetector_CachesSnapshotsPerSymbol(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	ctx := context.Background()
	src := &fakeBarSource{bars: dailyWindow(trendingCloses(30, 0.004), 1000)}
	d := NewDetector(src, nil)
	now := time.Date(2024, 4, 1, 14, 0, 0, 0, time.UTC)

	snap, err := d.Detect(ctx, "MES", now)
	require.NoError(t, err)
	assert.Equal(t, MarketBull, snap.Market)
	assert.Equal(t, MacroUnknown, snap.Macro)
	assert.Equal(t, BullExpansion, snap.Unified)
	assert.Equal(t, 1, src.fetches)

	assert.Equal(t, bars.TF1d, src.lastReq.Timeframe)
	assert.Equal(t, types.SessionFull, src.lastReq.SessionMode)
	assert.Equal(t, "regime:MES", src.lastReq.TraceID)
	assert.Equal(t, now.AddDate(0, 0, -30), src.lastReq.Start)

	// A second call inside the TTL serves the cached snapshot.
	again, err := d.Detect(ctx, "MES", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, snap.AssessedAt, again.AssessedAt)
	assert.Equal(t, 1, src.fetches)

	// Past the TTL the detector reclassifies.
	time.Sleep(150 * time.Millisecond)
	_, err = d.Detect(ctx, "MES", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, src.fetches)
}

func TestDetector_MacroSplitsTrendingRegimes(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	ctx := context.Background()
	src := &fakeBarSource{bars: dailyWindow(trendingCloses(30, 0.004), 1000)}
	d := NewDetector(src, staticMacro{MacroContraction})

	snap, err := d.Detect(ctx, "MES", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, MarketBull, snap.Market)
	assert.Equal(t, MacroContraction, snap.Macro)
	assert.Equal(t, BullContraction, snap.Unified)
}

func TestDetector_MacroFailureDegradesToMarketOnly(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	ctx := context.Background()
	src := &fakeBarSource{bars: dailyWindow(trendingCloses(30, -0.004), 1000)}
	d := NewDetector(src, failingMacro{})

	snap, err := d.Detect(ctx, "CL", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, MarketBear, snap.Market)
	assert.Equal(t, MacroUnknown, snap.Macro)
	assert.Equal(t, BearExpansion, snap.Unified)
}

func TestDetector_BarSourceErrorPropagates(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	src := &fakeBarSource{err: errors.New("provider down")}
	d := NewDetector(src, nil)

	_, err := d.Detect(context.Background(), "MES", time.Now().UTC())
	assert.ErrorContains(t, "could not load daily bars", err)
}

func TestDetector_GuidanceFollowsClassification(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	src := &fakeBarSource{bars: dailyWindow(alternatingCloses(30, 100, 3), 1000)}
	d := NewDetector(src, nil)

	snap, g, err := d.Guidance(context.Background(), "MNQ", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, HighVolCrisis, snap.Unified)
	assert.Equal(t, 0.3, g.PositionMultiplier)
}

func TestShouldTriggerResearch_CooldownGatesBursts(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	d := NewDetector(&fakeBarSource{}, nil)

	assert.Equal(t, false, d.ShouldTriggerResearch("MES", BullExpansion, BullExpansion))
	assert.Equal(t, false, d.ShouldTriggerResearch("MES", BullExpansion, Unknown))

	assert.Equal(t, true, d.ShouldTriggerResearch("MES", BullExpansion, HighVolCrisis))
	// The claim holds even for a different change on the same symbol.
	assert.Equal(t, false, d.ShouldTriggerResearch("MES", HighVolCrisis, SidewaysStable))
	// Other symbols keep their own cooldowns.
	assert.Equal(t, true, d.ShouldTriggerResearch("CL", BullExpansion, HighVolCrisis))

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, true, d.ShouldTriggerResearch("MES", HighVolCrisis, SidewaysStable))
}
