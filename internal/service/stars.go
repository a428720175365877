package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/dto"
	"github.com/BarkinBalci/star-feed-service/internal/feed"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// StarService serves filtered star history, derived filter options, service
// status and the RSS rendering. All writes happen in the scheduler; this
// layer only reads.
type StarService struct {
	store       repository.EventQuerier
	sched       SchedulerStatus
	renderer    *feed.Renderer
	feedLength  int
	matchTopics bool
	log         *zap.Logger
}

// NewStarService creates the read-side service.
func NewStarService(store repository.EventQuerier, sched SchedulerStatus, renderer *feed.Renderer, feedLength int, matchTopics bool, log *zap.Logger) *StarService {
	return &StarService{
		store:       store,
		sched:       sched,
		renderer:    renderer,
		feedLength:  feedLength,
		matchTopics: matchTopics,
		log:         log,
	}
}

// QueryStars validates the query, runs it and wraps the page with pagination
// figures and cache validators.
func (s *StarService) QueryStars(ctx context.Context, query dto.StarsQuery) (*dto.StarsResponse, error) {
	filter, err := buildFilter(query, s.matchTopics)
	if err != nil {
		return nil, err
	}

	result, err := s.store.QueryEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query star events: %w", err)
	}

	items := result.Items
	if items == nil {
		items = []domain.StarEvent{}
	}

	meta := dto.PageMeta{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    result.Total,
		HasNext:  filter.Page*filter.PageSize < result.Total,
		HasPrev:  filter.Page > 1,
		ETag:     starsETag(filter, result),
	}
	if result.NewestObservedAt != nil {
		meta.LastModified = result.NewestObservedAt.UTC().Format(http.TimeFormat)
	}

	return &dto.StarsResponse{Items: items, Meta: meta}, nil
}

// Options returns the distinct filter values currently in storage, tagged
// with a validator that changes whenever any row or count changes.
func (s *StarService) Options(ctx context.Context) (*dto.OptionsResponse, error) {
	snap, err := s.store.OptionsSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter options: %w", err)
	}

	resp := &dto.OptionsResponse{
		Languages: snap.Languages,
		Tiers:     snap.Tiers,
		Accounts:  snap.Accounts,
		UpdatedAt: snap.UpdatedAt,
		ETag:      weakETag("options", snap.Fingerprint()),
	}
	if resp.Languages == nil {
		resp.Languages = []repository.LanguageCount{}
	}
	if resp.Tiers == nil {
		resp.Tiers = []repository.TierCount{}
	}
	if resp.Accounts == nil {
		resp.Accounts = []repository.AccountCount{}
	}
	return resp, nil
}

// Status assembles the operational view: scheduler progress, upstream quota,
// database reachability and the earliest scheduled poll per tier. It always
// returns a body; readiness is a field, not an error.
func (s *StarService) Status(ctx context.Context) *dto.StatusResponse {
	snap := s.sched.Status()

	resp := &dto.StatusResponse{
		Ready:     snap.Ready,
		LastError: snap.LastError,
		NextRunAt: snap.NextRunAt,
		RateLimit: dto.RateLimitStatus{
			Remaining:   snap.RateLimit.Remaining,
			ResetAt:     snap.RateLimit.ResetAt,
			PausedUntil: snap.RateLimit.PausedUntil,
		},
	}
	if snap.LastCycle != nil {
		resp.LastCycle = &dto.CycleStatus{
			StartedAt:       snap.LastCycle.StartedAt,
			FinishedAt:      snap.LastCycle.FinishedAt,
			AccountsTracked: snap.LastCycle.AccountsTracked,
			AccountsPolled:  snap.LastCycle.AccountsPolled,
			EventsInserted:  snap.LastCycle.EventsInserted,
			Errors:          snap.LastCycle.Errors,
			Throttled:       snap.LastCycle.Throttled,
		}
	}

	resp.DatabaseOK = s.store.Ping(ctx) == nil
	if due, err := s.store.NextDueByTier(ctx); err == nil {
		resp.NextDue = dto.NextDueStatus{
			High:    due.High,
			Medium:  due.Medium,
			Low:     due.Low,
			Unknown: due.Unknown,
		}
	} else {
		s.log.Warn("Failed to load per-tier due times", zap.Error(err))
	}

	return resp
}

// Feed renders the most recent events as RSS.
func (s *StarService) Feed(ctx context.Context) (string, error) {
	events, err := s.store.RecentEvents(ctx, s.feedLength)
	if err != nil {
		return "", fmt.Errorf("failed to load recent events: %w", err)
	}
	return s.renderer.Render(events, time.Now().UTC())
}

// starsETag derives the page validator from everything that could change the
// response body: the normalized filter, the newest observation and the total.
func starsETag(filter repository.EventFilter, result *repository.QueryResult) string {
	var newest int64
	if result.NewestObservedAt != nil {
		newest = result.NewestObservedAt.UnixMilli()
	}
	return weakETag("stars", fmt.Sprintf("%s|%d|%d", filter.NormalizedKey(), newest, result.Total))
}

// weakETag hashes the payload into a weak validator. Weak because two
// serializations of the same logical content are considered equivalent.
func weakETag(label, payload string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(payload))
	return fmt.Sprintf(`W/"%s-%016x"`, label, h.Sum64())
}
