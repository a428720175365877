// Package scheduler drives the polling loop: it reconciles the followed set,
// fans out over due accounts with bounded concurrency, persists fetched star
// events and reschedules each account from its updated event history.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/github"
	"github.com/BarkinBalci/star-feed-service/internal/interval"
	"github.com/BarkinBalci/star-feed-service/internal/metrics"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// SourceClient is the upstream surface the scheduler polls.
type SourceClient interface {
	ListFollowing(ctx context.Context) ([]domain.AccountRef, error)
	FetchStarred(ctx context.Context, req github.StarredRequest) (*github.Outcome, error)
	RateLimit() github.RateLimitSnapshot
}

// Config carries the scheduler's tunables.
type Config struct {
	Refresh        time.Duration
	MaxConcurrency int
	Interval       interval.Config
}

// Scheduler owns all writes to tracked accounts and star events.
type Scheduler struct {
	source  SourceClient
	store   repository.AccountStore
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger
	state   *state

	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

// New creates a scheduler. It does not start polling; call Run.
func New(source SourceClient, store repository.AccountStore, cfg Config, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Scheduler{
		source:  source,
		store:   store,
		cfg:     cfg,
		metrics: m,
		log:     log,
		state:   &state{},
		now:     func() time.Time { return time.Now().UTC() },
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(2*max))) - max
		},
	}
}

// Status reports scheduler progress plus the latest upstream quota state.
func (s *Scheduler) Status() Snapshot {
	return s.state.snapshot(s.source.RateLimit())
}

// Run polls in a loop until the context is cancelled. Cycles never overlap:
// the next one starts only after the previous finished plus the refresh pause.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Polling cycle failed", zap.Error(err))
		}

		next := s.now().Add(s.cfg.Refresh)
		s.state.recordNextRun(next)

		timer := time.NewTimer(s.cfg.Refresh)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunCycle executes one full polling cycle: list the followed accounts,
// reconcile storage, then poll every account that is due. Account-level
// failures are isolated; an authentication failure aborts the whole cycle
// since every subsequent request would fail the same way.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	started := s.now()
	stats := CycleStats{StartedAt: started}

	refs, err := s.source.ListFollowing(ctx)
	if err != nil {
		stats.FinishedAt = s.now()
		s.state.recordCycle(stats, err)
		return err
	}
	stats.AccountsTracked = len(refs)
	s.metrics.AccountsTracked.Set(float64(len(refs)))

	if err := s.store.ReconcileAccounts(ctx, refs, s.cfg.Interval.DefaultMinutes); err != nil {
		stats.FinishedAt = s.now()
		s.state.recordCycle(stats, err)
		return err
	}

	due, err := s.store.DueAccounts(ctx, started)
	if err != nil {
		stats.FinishedAt = s.now()
		s.state.recordCycle(stats, err)
		return err
	}
	stats.AccountsPolled = len(due)

	var inserted, failures, throttled atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.MaxConcurrency)
	for _, account := range due {
		account := account
		group.Go(func() error {
			n, err := s.pollAccount(groupCtx, account)
			inserted.Add(int64(n))
			if err != nil {
				// Credential failures poison every remaining request, so
				// they cancel the group. Anything else stays local to the
				// account.
				if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrForbidden) ||
					errors.Is(err, context.Canceled) {
					return err
				}
				var limited *domain.RateLimitedError
				if errors.As(err, &limited) {
					// A throttle is a pause, not a failure.
					throttled.Add(1)
					s.log.Info("Account poll throttled",
						zap.String("handle", account.Handle),
						zap.Duration("retry_after", limited.RetryAfter))
					return nil
				}
				failures.Add(1)
				s.log.Warn("Account poll failed",
					zap.String("handle", account.Handle),
					zap.Error(err))
			}
			return nil
		})
	}
	err = group.Wait()

	stats.EventsInserted = int(inserted.Load())
	stats.Errors = int(failures.Load())
	stats.Throttled = int(throttled.Load())
	stats.FinishedAt = s.now()
	s.state.recordCycle(stats, err)

	s.metrics.CyclesTotal.Inc()
	s.metrics.CycleDuration.Observe(stats.FinishedAt.Sub(started).Seconds())
	s.metrics.EventsInserted.Add(float64(stats.EventsInserted))
	if snap := s.source.RateLimit(); snap.Remaining != nil {
		s.metrics.RateLimitRemained.Set(float64(*snap.Remaining))
	}

	if err != nil {
		return err
	}
	s.log.Info("Polling cycle finished",
		zap.Int("tracked", stats.AccountsTracked),
		zap.Int("polled", stats.AccountsPolled),
		zap.Int("inserted", stats.EventsInserted),
		zap.Int("errors", stats.Errors),
		zap.Int("throttled", stats.Throttled),
		zap.Duration("took", stats.FinishedAt.Sub(started)))
	return nil
}

// pollAccount fetches one account's stars, persists anything new and
// recomputes the account's schedule. It returns the number of newly stored
// events.
func (s *Scheduler) pollAccount(ctx context.Context, account domain.TrackedAccount) (int, error) {
	s.metrics.FetchesInFlight.Inc()
	defer s.metrics.FetchesInFlight.Dec()

	outcome, err := s.source.FetchStarred(ctx, github.StarredRequest{
		Handle:       account.Handle,
		ETag:         account.ETag,
		LastModified: account.LastModified,
		KnownLatest:  account.LastEventAt,
	})
	if err != nil {
		var limited *domain.RateLimitedError
		if errors.As(err, &limited) {
			s.metrics.FetchesTotal.WithLabelValues(metrics.OutcomeThrottled).Inc()
			s.metrics.RateLimitPauses.Inc()
			wait := limited.RetryAfter
			if wait < time.Minute {
				wait = time.Minute
			}
			if deferErr := s.store.DeferAccount(ctx, account.ID, s.now().Add(wait)); deferErr != nil {
				return 0, deferErr
			}
			return 0, err
		}
		s.metrics.FetchesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrForbidden) {
			return 0, err
		}
		// Keep the current cadence; the next attempt happens one interval out.
		nextDue := s.nextDueAt(s.now(), account.IntervalMinute)
		if deferErr := s.store.DeferAccount(ctx, account.ID, nextDue); deferErr != nil {
			return 0, deferErr
		}
		return 0, err
	}

	if outcome.NotModified {
		s.metrics.FetchesTotal.WithLabelValues(metrics.OutcomeNotModified).Inc()
		nextDue := s.nextDueAt(outcome.FetchedAt, account.IntervalMinute)
		return 0, s.store.RecordNotModified(ctx, account.ID, outcome.FetchedAt, nextDue)
	}

	inserted := 0
	if len(outcome.Events) > 0 {
		s.metrics.FetchesTotal.WithLabelValues(metrics.OutcomeEvents).Inc()
	} else {
		s.metrics.FetchesTotal.WithLabelValues(metrics.OutcomeEmpty).Inc()
	}

	inserted, err = s.store.RecordEvents(ctx, repository.EventBatch{
		Account:      account,
		Events:       outcome.Events,
		ETag:         outcome.ETag,
		LastModified: outcome.LastModified,
		PolledAt:     outcome.FetchedAt,
	})
	if err != nil {
		return 0, err
	}

	// Replay the full stored history so the schedule is a pure function of
	// what is on disk, independent of which poll delivered which event.
	times, err := s.store.EventTimes(ctx, account.ID)
	if err != nil {
		return inserted, err
	}
	result := interval.Update(s.cfg.Interval, interval.State{}, nil, interval.GapsBetween(times))

	update := repository.ScheduleUpdate{
		AccountID:       account.ID,
		IntervalMinutes: result.IntervalMinutes,
		Tier:            result.Tier,
		EMAMinutes:      result.EMA,
		NextDueAt:       s.nextDueAt(outcome.FetchedAt, result.IntervalMinutes),
	}
	if err := s.store.UpdateSchedule(ctx, update); err != nil {
		return inserted, err
	}

	if inserted > 0 {
		s.log.Debug("Stored new star events",
			zap.String("handle", account.Handle),
			zap.Int("inserted", inserted),
			zap.Int("interval_minutes", result.IntervalMinutes))
	}
	return inserted, nil
}

// nextDueAt schedules the next poll one interval out, spread by a jitter of
// up to 10% of the interval, never less than one minute and never more than
// thirty. The spread keeps accounts with identical intervals from lining up
// on the same cycle.
func (s *Scheduler) nextDueAt(from time.Time, intervalMinutes int) time.Time {
	d := time.Duration(intervalMinutes) * time.Minute
	max := d / 10
	if max < time.Minute {
		max = time.Minute
	}
	if max > 30*time.Minute {
		max = 30 * time.Minute
	}
	return from.Add(d + s.jitter(max))
}
