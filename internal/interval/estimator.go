// Package interval derives per-account polling intervals from the spacing of
// observed star events. The estimator is a pure function: given the same gap
// history and prior state it always produces the same result, so schedules can
// be replayed from stored history alone.
package interval

import (
	"math"
	"time"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
)

// Alpha is the EMA smoothing constant: each new gap contributes 30%.
const Alpha = 0.3

// Config bounds the estimator output. All values are minutes.
type Config struct {
	MinMinutes     int
	MaxMinutes     int
	DefaultMinutes int
}

// State is the persisted estimator state for one account.
type State struct {
	// EMA is the smoothed gap estimate in minutes, nil until the account has
	// accumulated three events.
	EMA *float64
	// SampleCount is the number of gap samples folded in before the update.
	SampleCount int64
}

// Result is the recomputed schedule for an account.
type Result struct {
	IntervalMinutes int
	Tier            domain.ActivityTier
	EMA             *float64
}

// Update folds newGaps into the prior state and returns the next polling
// interval. priorGaps are the gaps already implied by stored history (ordered,
// minutes); they are only consulted when the third event arrives and the EMA
// has to be seeded from the mean of everything seen so far rather than the
// latest gap alone.
func Update(cfg Config, prior State, priorGaps, newGaps []float64) Result {
	minM := cfg.MinMinutes
	if minM < 1 {
		minM = 1
	}
	maxM := cfg.MaxMinutes
	if maxM < minM {
		maxM = minM
	}
	defaultM := clampInt(cfg.DefaultMinutes, minM, maxM)

	ema := prior.EMA
	count := prior.SampleCount
	interval := defaultM
	seen := append([]float64(nil), priorGaps...)

	for _, gap := range newGaps {
		count++
		seen = append(seen, gap)

		if count < 3 {
			ema = nil
			interval = defaultM
			continue
		}

		if ema == nil {
			seeded := clampFloat(mean(seen), float64(minM), float64(maxM))
			ema = &seeded
			interval = int(math.Round(seeded))
			continue
		}

		g := math.Max(gap, 1)
		next := clampFloat(Alpha*g+(1-Alpha)*(*ema), float64(minM), float64(maxM))
		ema = &next
		interval = int(math.Round(next))
	}

	switch {
	case count == 0:
		// Accounts that have never starred anything sit at the slowest cadence.
		ema = nil
		interval = maxM
	case count < 3:
		ema = nil
		interval = defaultM
	case len(newGaps) == 0:
		if ema != nil {
			interval = int(math.Round(*ema))
		} else if len(seen) > 0 {
			seeded := clampFloat(mean(seen), float64(minM), float64(maxM))
			ema = &seeded
			interval = int(math.Round(seeded))
		} else {
			interval = defaultM
		}
	}

	interval = clampInt(interval, minM, maxM)

	// Accounts without enough history to estimate sit in the low tier no
	// matter what the default interval maps to.
	tier := domain.TierForInterval(interval)
	if count < 3 {
		tier = domain.TierLow
	}

	return Result{
		IntervalMinutes: interval,
		Tier:            tier,
		EMA:             ema,
	}
}

// GapsBetween converts an ordered event-timestamp history into positive gaps
// in minutes. Zero and negative gaps are dropped: equal timestamps carry no
// spacing information.
func GapsBetween(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	out := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		g := times[i].Sub(times[i-1]).Minutes()
		if g > 0 {
			out = append(out, g)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
