package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
)

var testCfg = Config{
	MinMinutes:     10,
	MaxMinutes:     7 * 24 * 60,
	DefaultMinutes: 60,
}

func TestUpdate_SparseHistoryUsesDefault(t *testing.T) {
	res := Update(testCfg, State{SampleCount: 1}, nil, []float64{30})

	assert.Equal(t, 60, res.IntervalMinutes)
	assert.Nil(t, res.EMA)
	assert.Equal(t, domain.TierLow, res.Tier)
}

func TestUpdate_ZeroEventsUsesMaxInterval(t *testing.T) {
	res := Update(testCfg, State{}, nil, nil)

	assert.Equal(t, testCfg.MaxMinutes, res.IntervalMinutes)
	assert.Nil(t, res.EMA)
	assert.Equal(t, domain.TierLow, res.Tier)
}

func TestUpdate_BootstrapSeedsFromMeanOfAllGaps(t *testing.T) {
	res := Update(testCfg, State{}, nil, []float64{10, 20, 30})

	require.NotNil(t, res.EMA)
	assert.InDelta(t, 20.0, *res.EMA, 1e-9)
	assert.Equal(t, 20, res.IntervalMinutes)
}

func TestUpdate_BootstrapIncludesPriorGaps(t *testing.T) {
	// Two events already stored (one gap), the third event arrives now. The
	// seed must average the stored gap with the new one.
	res := Update(testCfg, State{SampleCount: 2}, []float64{1440}, []float64{720})

	require.NotNil(t, res.EMA)
	assert.InDelta(t, 1080.0, *res.EMA, 1e-9)
	assert.Equal(t, 1080, res.IntervalMinutes)
	assert.Equal(t, domain.TierMedium, res.Tier)
}

func TestUpdate_SteadyStateSmoothing(t *testing.T) {
	prior := 90.0
	res := Update(testCfg, State{EMA: &prior, SampleCount: 3}, nil, []float64{30})

	require.NotNil(t, res.EMA)
	assert.InDelta(t, 72.0, *res.EMA, 1e-9)
	assert.Equal(t, 72, res.IntervalMinutes)
	assert.Equal(t, domain.TierMedium, res.Tier)
}

func TestUpdate_OutputAlwaysWithinBounds(t *testing.T) {
	gapSets := [][]float64{
		{0.001, 0.001, 0.001},
		{1e9, 1e9, 1e9},
		{1, 100000, 3},
		{50000, 1, 50000, 1, 50000},
	}
	for _, gaps := range gapSets {
		res := Update(testCfg, State{}, nil, gaps)
		assert.GreaterOrEqual(t, res.IntervalMinutes, testCfg.MinMinutes, "gaps %v", gaps)
		assert.LessOrEqual(t, res.IntervalMinutes, testCfg.MaxMinutes, "gaps %v", gaps)
		if res.EMA != nil {
			assert.GreaterOrEqual(t, *res.EMA, float64(testCfg.MinMinutes))
			assert.LessOrEqual(t, *res.EMA, float64(testCfg.MaxMinutes))
		}
	}
}

func TestUpdate_NoNewGapsKeepsEMA(t *testing.T) {
	prior := 120.0
	res := Update(testCfg, State{EMA: &prior, SampleCount: 5}, nil, nil)

	require.NotNil(t, res.EMA)
	assert.Equal(t, 120, res.IntervalMinutes)
	assert.Equal(t, domain.TierMedium, res.Tier)
}

func TestUpdate_Deterministic(t *testing.T) {
	gaps := []float64{45, 12, 300, 7, 90}
	a := Update(testCfg, State{}, nil, gaps)
	b := Update(testCfg, State{}, nil, gaps)

	assert.Equal(t, a.IntervalMinutes, b.IntervalMinutes)
	assert.Equal(t, a.Tier, b.Tier)
	require.NotNil(t, a.EMA)
	require.NotNil(t, b.EMA)
	assert.Equal(t, *a.EMA, *b.EMA)
}

func TestTierForInterval(t *testing.T) {
	assert.Equal(t, domain.TierHigh, domain.TierForInterval(45))
	assert.Equal(t, domain.TierHigh, domain.TierForInterval(60))
	assert.Equal(t, domain.TierMedium, domain.TierForInterval(61))
	assert.Equal(t, domain.TierMedium, domain.TierForInterval(800))
	assert.Equal(t, domain.TierMedium, domain.TierForInterval(1440))
	assert.Equal(t, domain.TierLow, domain.TierForInterval(5000))
}

func TestGapsBetween(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(10 * time.Minute),
		base.Add(10 * time.Minute), // duplicate timestamp, no gap
		base.Add(40 * time.Minute),
	}

	gaps := GapsBetween(times)
	require.Len(t, gaps, 2)
	assert.InDelta(t, 10.0, gaps[0], 1e-9)
	assert.InDelta(t, 30.0, gaps[1], 1e-9)

	assert.Nil(t, GapsBetween(times[:1]))
}
