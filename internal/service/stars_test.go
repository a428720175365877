package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/dto"
	"github.com/BarkinBalci/star-feed-service/internal/feed"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
	"github.com/BarkinBalci/star-feed-service/internal/scheduler"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) QueryEvents(ctx context.Context, filter repository.EventFilter) (*repository.QueryResult, error) {
	args := m.Called(ctx, filter)
	if res := args.Get(0); res != nil {
		return res.(*repository.QueryResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQuerier) OptionsSnapshot(ctx context.Context) (*repository.OptionsSnapshot, error) {
	args := m.Called(ctx)
	if snap := args.Get(0); snap != nil {
		return snap.(*repository.OptionsSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQuerier) NextDueByTier(ctx context.Context) (*repository.NextDueByTier, error) {
	args := m.Called(ctx)
	if due := args.Get(0); due != nil {
		return due.(*repository.NextDueByTier), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQuerier) RecentEvents(ctx context.Context, limit int) ([]domain.StarEvent, error) {
	args := m.Called(ctx, limit)
	if events := args.Get(0); events != nil {
		return events.([]domain.StarEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQuerier) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type stubScheduler struct {
	snap scheduler.Snapshot
}

func (s *stubScheduler) Status() scheduler.Snapshot {
	return s.snap
}

func newTestService(store *mockQuerier, sched SchedulerStatus) *StarService {
	if sched == nil {
		sched = &stubScheduler{}
	}
	renderer := feed.NewRenderer("Starred", "http://localhost:8080")
	return NewStarService(store, sched, renderer, 100, false, zap.NewNop())
}

func TestQueryStars_CollectsAllFieldErrors(t *testing.T) {
	s := newTestService(new(mockQuerier), nil)

	_, err := s.QueryStars(context.Background(), dto.StarsQuery{
		Page:     0,
		PageSize: 500,
		Sort:     "bogus",
		UserMode: "pin",
	})

	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)

	seen := map[string]bool{}
	for _, f := range verr.Fields {
		seen[f.Field] = true
	}
	assert.True(t, seen["page"])
	assert.True(t, seen["page_size"])
	assert.True(t, seen["sort"])
	assert.True(t, seen["user"])
}

func TestQueryStars_PaginationMeta(t *testing.T) {
	newest := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store := new(mockQuerier)
	store.On("QueryEvents", mock.Anything, mock.Anything).Return(&repository.QueryResult{
		Items:            make([]domain.StarEvent, 25),
		Total:            60,
		NewestObservedAt: &newest,
	}, nil)

	s := newTestService(store, nil)
	resp, err := s.QueryStars(context.Background(), dto.StarsQuery{Page: 1, PageSize: 25})

	assert.NoError(t, err)
	assert.Equal(t, 60, resp.Meta.Total)
	assert.True(t, resp.Meta.HasNext)
	assert.False(t, resp.Meta.HasPrev)
	assert.Equal(t, "Sun, 01 Feb 2026 10:00:00 GMT", resp.Meta.LastModified)

	resp, err = s.QueryStars(context.Background(), dto.StarsQuery{Page: 3, PageSize: 25})
	assert.NoError(t, err)
	assert.False(t, resp.Meta.HasNext)
	assert.True(t, resp.Meta.HasPrev)
}

func TestQueryStars_EmptyResultKeepsEnvelope(t *testing.T) {
	store := new(mockQuerier)
	store.On("QueryEvents", mock.Anything, mock.Anything).Return(&repository.QueryResult{}, nil)

	s := newTestService(store, nil)
	resp, err := s.QueryStars(context.Background(), dto.StarsQuery{Page: 1, PageSize: 25})

	assert.NoError(t, err)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 0, resp.Meta.Total)
	assert.Empty(t, resp.Meta.LastModified)
	assert.NotEmpty(t, resp.Meta.ETag)
}

func TestStarsETag_TracksContent(t *testing.T) {
	newest := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	later := newest.Add(time.Minute)
	filter := repository.EventFilter{Search: "rust"}.Normalize()
	other := repository.EventFilter{Search: "go"}.Normalize()

	base := starsETag(filter, &repository.QueryResult{Total: 10, NewestObservedAt: &newest})

	assert.Equal(t, base,
		starsETag(filter, &repository.QueryResult{Total: 10, NewestObservedAt: &newest}))
	assert.NotEqual(t, base,
		starsETag(filter, &repository.QueryResult{Total: 11, NewestObservedAt: &newest}))
	assert.NotEqual(t, base,
		starsETag(filter, &repository.QueryResult{Total: 10, NewestObservedAt: &later}))
	assert.NotEqual(t, base,
		starsETag(other, &repository.QueryResult{Total: 10, NewestObservedAt: &newest}))
	assert.Regexp(t, `^W/"stars-[0-9a-f]{16}"$`, base)
}

func TestOptions_ETagFollowsFingerprint(t *testing.T) {
	updated := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store := new(mockQuerier)
	store.On("OptionsSnapshot", mock.Anything).Return(&repository.OptionsSnapshot{
		Languages: []repository.LanguageCount{{Name: "Go", Count: 3}},
		UpdatedAt: &updated,
	}, nil).Once()
	store.On("OptionsSnapshot", mock.Anything).Return(&repository.OptionsSnapshot{
		Languages: []repository.LanguageCount{{Name: "Go", Count: 4}},
		UpdatedAt: &updated,
	}, nil).Once()

	s := newTestService(store, nil)
	first, err := s.Options(context.Background())
	assert.NoError(t, err)
	second, err := s.Options(context.Background())
	assert.NoError(t, err)

	assert.NotEqual(t, first.ETag, second.ETag)
	assert.NotNil(t, first.Tiers)
	assert.NotNil(t, first.Accounts)
}

func TestStatus_ReflectsSchedulerAndDatabase(t *testing.T) {
	store := new(mockQuerier)
	store.On("Ping", mock.Anything).Return(errors.New("connection refused"))
	store.On("NextDueByTier", mock.Anything).Return(&repository.NextDueByTier{}, nil)

	sched := &stubScheduler{snap: scheduler.Snapshot{Ready: false, LastError: "boom"}}
	s := newTestService(store, sched)

	resp := s.Status(context.Background())

	assert.False(t, resp.Ready)
	assert.False(t, resp.DatabaseOK)
	assert.Equal(t, "boom", resp.LastError)
}

func TestStatus_Ready(t *testing.T) {
	now := time.Now().UTC()
	due := now.Add(10 * time.Minute)
	store := new(mockQuerier)
	store.On("Ping", mock.Anything).Return(nil)
	store.On("NextDueByTier", mock.Anything).Return(&repository.NextDueByTier{High: &due}, nil)

	sched := &stubScheduler{snap: scheduler.Snapshot{
		Ready:     true,
		LastCycle: &scheduler.CycleStats{EventsInserted: 5},
	}}
	s := newTestService(store, sched)

	resp := s.Status(context.Background())

	assert.True(t, resp.Ready)
	assert.True(t, resp.DatabaseOK)
	assert.Equal(t, 5, resp.LastCycle.EventsInserted)
	assert.Equal(t, &due, resp.NextDue.High)
}

func TestFeed_RendersRecentEvents(t *testing.T) {
	store := new(mockQuerier)
	store.On("RecentEvents", mock.Anything, 100).Return([]domain.StarEvent{
		{AccountHandle: "alice", RepoFullName: "rust-lang/rust", OccurredAt: time.Now().UTC()},
	}, nil)

	s := newTestService(store, nil)
	xml, err := s.Feed(context.Background())

	assert.NoError(t, err)
	assert.Contains(t, xml, "alice starred rust-lang/rust")
}
