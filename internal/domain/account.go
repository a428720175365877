package domain

import "time"

// ActivityTier is a coarse classification of how often an account stars
// repositories, derived from its current polling interval.
type ActivityTier string

const (
	TierHigh    ActivityTier = "high"
	TierMedium  ActivityTier = "medium"
	TierLow     ActivityTier = "low"
	TierUnknown ActivityTier = "unknown"
)

// TierForInterval maps a polling interval in minutes to an activity tier.
func TierForInterval(minutes int) ActivityTier {
	switch {
	case minutes <= 60:
		return TierHigh
	case minutes <= 24*60:
		return TierMedium
	default:
		return TierLow
	}
}

// AccountRef identifies an upstream account. The numeric ID is the identity;
// the handle is mutable upstream and only usable as a cache key.
type AccountRef struct {
	ID     int64
	Handle string
}

// TrackedAccount is the per-account polling state owned by the scheduler.
type TrackedAccount struct {
	ID             int64
	Handle         string
	LastEventAt    *time.Time
	LastPolledAt   *time.Time
	ETag           string
	LastModified   string
	IntervalMinute int
	Tier           ActivityTier
	EMAMinutes     *float64
	EventCount     int64
	NextDueAt      time.Time
}
