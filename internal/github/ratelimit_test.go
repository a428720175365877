package github

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateGate_WaitPassesWhenNotPaused(t *testing.T) {
	gate := NewRateGate()
	assert.NoError(t, gate.Wait(context.Background()))
}

func TestRateGate_WaitUntilPauseExpires(t *testing.T) {
	gate := NewRateGate()
	gate.Pause(time.Now().Add(30 * time.Millisecond))

	start := time.Now()
	assert.NoError(t, gate.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateGate_WaitHonorsContext(t *testing.T) {
	gate := NewRateGate()
	gate.Pause(time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateGate_PauseNeverShortens(t *testing.T) {
	gate := NewRateGate()
	far := time.Now().Add(time.Hour)
	gate.Pause(far)
	gate.Pause(time.Now().Add(time.Minute))

	snap := gate.Snapshot()
	assert.NotNil(t, snap.PausedUntil)
	assert.Equal(t, far, *snap.PausedUntil)
}

func TestRateGate_ObserveRecordsQuota(t *testing.T) {
	gate := NewRateGate()
	h := http.Header{}
	h.Set("x-ratelimit-remaining", "7")
	h.Set("x-ratelimit-reset", "1767225600")

	gate.Observe(h)

	snap := gate.Snapshot()
	assert.Equal(t, 7, *snap.Remaining)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), *snap.ResetAt)
	assert.Nil(t, snap.PausedUntil)
}

func TestRateGate_ExhaustedQuotaPausesUntilReset(t *testing.T) {
	gate := NewRateGate()
	reset := time.Now().Add(time.Hour).Unix()
	h := http.Header{}
	h.Set("x-ratelimit-remaining", "0")
	h.Set("x-ratelimit-reset", strconv.FormatInt(reset, 10))

	gate.Observe(h)

	snap := gate.Snapshot()
	assert.NotNil(t, snap.PausedUntil)
	assert.Equal(t, time.Unix(reset, 0).UTC(), *snap.PausedUntil)
}

func TestRateGate_MalformedHeadersIgnored(t *testing.T) {
	gate := NewRateGate()
	h := http.Header{}
	h.Set("x-ratelimit-remaining", "not-a-number")

	gate.Observe(h)

	snap := gate.Snapshot()
	assert.Nil(t, snap.Remaining)
}
