package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
)

// EventBatch is one account's poll result to be persisted atomically.
type EventBatch struct {
	Account      domain.TrackedAccount
	Events       []domain.StarEvent
	ETag         string
	LastModified string
	PolledAt     time.Time
}

// ScheduleUpdate carries a recomputed polling schedule for one account.
type ScheduleUpdate struct {
	AccountID       int64
	IntervalMinutes int
	Tier            domain.ActivityTier
	EMAMinutes      *float64
	NextDueAt       time.Time
}

// QueryResult is a filtered, paginated page of star events plus the figures
// the cache validator is computed from.
type QueryResult struct {
	Items            []domain.StarEvent
	Total            int
	NewestObservedAt *time.Time
}

// LanguageCount, TierCount and AccountCount are rows of the derived filter
// options aggregate.
type LanguageCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TierCount struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

type AccountCount struct {
	Handle string `json:"handle"`
	Count  int    `json:"count"`
}

// OptionsSnapshot aggregates the distinct filter values currently in storage.
type OptionsSnapshot struct {
	Languages []LanguageCount
	Tiers     []TierCount
	Accounts  []AccountCount
	UpdatedAt *time.Time
}

// Fingerprint is a change marker for the snapshot: any row or count change
// alters it, so it can key the aggregate's own cache validator.
func (s *OptionsSnapshot) Fingerprint() string {
	parts := make([]string, 0, len(s.Languages)+len(s.Tiers)+len(s.Accounts)+1)
	for _, l := range s.Languages {
		parts = append(parts, fmt.Sprintf("lang:%s=%d", l.Name, l.Count))
	}
	for _, t := range s.Tiers {
		parts = append(parts, fmt.Sprintf("tier:%s=%d", t.Tier, t.Count))
	}
	for _, a := range s.Accounts {
		parts = append(parts, fmt.Sprintf("account:%s=%d", a.Handle, a.Count))
	}
	if s.UpdatedAt != nil {
		parts = append(parts, "updated="+s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return strings.Join(parts, "|")
}

// NextDueByTier holds the earliest next-due timestamp per activity tier.
type NextDueByTier struct {
	High    *time.Time
	Medium  *time.Time
	Low     *time.Time
	Unknown *time.Time
}

// AccountStore is the scheduler's write surface. The scheduler is the only
// writer of tracked accounts and star events.
type AccountStore interface {
	// ReconcileAccounts upserts the followed set by id (handles may have been
	// renamed upstream) and removes accounts that are no longer followed.
	ReconcileAccounts(ctx context.Context, refs []domain.AccountRef, defaultIntervalMinutes int) error

	// DueAccounts returns accounts whose next_due_at has passed, oldest first.
	DueAccounts(ctx context.Context, now time.Time) ([]domain.TrackedAccount, error)

	// RecordNotModified updates poll bookkeeping after a 304 without touching
	// the interval.
	RecordNotModified(ctx context.Context, accountID int64, polledAt, nextDueAt time.Time) error

	// DeferAccount pushes an account's next poll out, used after throttles and
	// exhausted retries.
	DeferAccount(ctx context.Context, accountID int64, nextDueAt time.Time) error

	// EventTimes returns the account's stored occurred_at history in ascending
	// order, for estimator replay.
	EventTimes(ctx context.Context, accountID int64) ([]time.Time, error)

	// RecordEvents persists one account batch in a single transaction and
	// returns how many events were actually new. Duplicates under the
	// (account, repo, occurred_at) key are ignored, not errors.
	RecordEvents(ctx context.Context, batch EventBatch) (int, error)

	// UpdateSchedule stores a recomputed interval, tier, EMA and due time.
	UpdateSchedule(ctx context.Context, update ScheduleUpdate) error
}

// EventQuerier is the read surface used by the query layer and feed adapter.
type EventQuerier interface {
	QueryEvents(ctx context.Context, filter EventFilter) (*QueryResult, error)
	OptionsSnapshot(ctx context.Context) (*OptionsSnapshot, error)
	NextDueByTier(ctx context.Context) (*NextDueByTier, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.StarEvent, error)
	Ping(ctx context.Context) error
}

// Store is the full persistence contract.
type Store interface {
	AccountStore
	EventQuerier

	InitSchema(ctx context.Context) error
	Close()
}
