package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitSnapshot is a point-in-time copy of the upstream quota signals.
type RateLimitSnapshot struct {
	Remaining   *int
	ResetAt     *time.Time
	PausedUntil *time.Time
}

// RateGate serializes the "paused until" decision across all in-flight
// requests. Concurrent fetches observe one consistent deadline instead of each
// re-triggering a pause on its own.
type RateGate struct {
	mu          sync.Mutex
	pausedUntil time.Time
	remaining   *int
	resetAt     *time.Time
}

func NewRateGate() *RateGate {
	return &RateGate{}
}

// Wait blocks until the current pause deadline has passed, or the context is
// cancelled. The deadline is re-read after waking in case another request
// extended it meanwhile.
func (g *RateGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		until := g.pausedUntil
		g.mu.Unlock()

		delay := time.Until(until)
		if delay <= 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pause suspends all requests until the given deadline. Earlier deadlines
// never shorten a pause already in effect.
func (g *RateGate) Pause(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.pausedUntil) {
		g.pausedUntil = until
	}
}

// Observe records the quota headers of a response. An exhausted quota with a
// known reset time pauses the gate until that time.
func (g *RateGate) Observe(h http.Header) {
	remaining, haveRemaining := parseIntHeader(h, "x-ratelimit-remaining")
	reset, haveReset := parseIntHeader(h, "x-ratelimit-reset")

	g.mu.Lock()
	defer g.mu.Unlock()

	if haveRemaining {
		v := remaining
		g.remaining = &v
	}
	if haveReset {
		t := time.Unix(int64(reset), 0).UTC()
		g.resetAt = &t
	}
	if haveRemaining && remaining == 0 && g.resetAt != nil && g.resetAt.After(g.pausedUntil) {
		g.pausedUntil = *g.resetAt
	}
}

// Snapshot returns the most recently observed quota state.
func (g *RateGate) Snapshot() RateLimitSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := RateLimitSnapshot{}
	if g.remaining != nil {
		v := *g.remaining
		snap.Remaining = &v
	}
	if g.resetAt != nil {
		t := *g.resetAt
		snap.ResetAt = &t
	}
	if !g.pausedUntil.IsZero() && g.pausedUntil.After(time.Now()) {
		t := g.pausedUntil
		snap.PausedUntil = &t
	}
	return snap
}

func parseIntHeader(h http.Header, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
