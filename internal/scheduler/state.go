package scheduler

import (
	"sync"
	"time"

	"github.com/BarkinBalci/star-feed-service/internal/github"
)

// CycleStats summarizes one completed polling cycle.
type CycleStats struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	AccountsTracked int
	AccountsPolled  int
	EventsInserted  int
	Errors          int
	Throttled       int
}

// Snapshot is a point-in-time view of scheduler progress for the status
// surface.
type Snapshot struct {
	Ready     bool
	LastCycle *CycleStats
	LastError string
	NextRunAt *time.Time
	RateLimit github.RateLimitSnapshot
}

// state tracks scheduler progress. The scheduler is the only writer; the
// status endpoint reads concurrently through Snapshot.
type state struct {
	mu        sync.Mutex
	ready     bool
	lastCycle *CycleStats
	lastError string
	nextRunAt *time.Time
}

func (s *state) recordCycle(stats CycleStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = &stats
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.ready = true
	}
}

func (s *state) recordNextRun(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunAt = &at
}

func (s *state) snapshot(rate github.RateLimitSnapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Ready:     s.ready,
		LastError: s.lastError,
		RateLimit: rate,
	}
	if s.lastCycle != nil {
		c := *s.lastCycle
		snap.LastCycle = &c
	}
	if s.nextRunAt != nil {
		t := *s.nextRunAt
		snap.NextRunAt = &t
	}
	return snap
}
