package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// Repository implements repository.Store on PostgreSQL.
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a PostgreSQL-backed store.
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{client: client, log: log}
}

// InitSchema creates tables and indexes if they do not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		last_event_at TIMESTAMPTZ,
		last_polled_at TIMESTAMPTZ,
		etag TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT '',
		interval_minutes INTEGER NOT NULL,
		activity_tier TEXT NOT NULL DEFAULT 'unknown',
		ema_minutes DOUBLE PRECISION,
		event_count BIGINT NOT NULL DEFAULT 0,
		next_due_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS star_events (
		sequence BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		repo_full_name TEXT NOT NULL,
		repo_html_url TEXT NOT NULL,
		repo_description TEXT,
		repo_language TEXT,
		repo_topics JSONB,
		occurred_at TIMESTAMPTZ NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT star_events_dedup UNIQUE (account_id, repo_full_name, occurred_at)
	);

	CREATE INDEX IF NOT EXISTS idx_star_events_observed
		ON star_events (observed_at DESC, sequence DESC);
	CREATE INDEX IF NOT EXISTS idx_star_events_account_occurred
		ON star_events (account_id, occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_accounts_next_due
		ON accounts (next_due_at);
	`

	if _, err := r.client.Pool().Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	r.log.Info("PostgreSQL schema initialized")
	return nil
}

// ReconcileAccounts upserts followed accounts by id and prunes rows for
// accounts no longer followed. An empty list is a no-op so a transient empty
// upstream response never wipes local state.
func (r *Repository) ReconcileAccounts(ctx context.Context, refs []domain.AccountRef, defaultIntervalMinutes int) error {
	if len(refs) == 0 {
		return nil
	}

	tx, err := r.client.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reconcile transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	keep := make([]int64, 0, len(refs))
	for _, ref := range refs {
		keep = append(keep, ref.ID)
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, handle, interval_minutes, activity_tier, next_due_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET handle = EXCLUDED.handle`,
			ref.ID, ref.Handle, defaultIntervalMinutes, string(domain.TierUnknown), now)
		if err != nil {
			return fmt.Errorf("failed to upsert account %d: %w", ref.ID, err)
		}
	}

	ct, err := tx.Exec(ctx, `DELETE FROM accounts WHERE NOT (id = ANY($1))`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune unfollowed accounts: %w", err)
	}
	if ct.RowsAffected() > 0 {
		r.log.Info("Pruned unfollowed accounts", zap.Int64("count", ct.RowsAffected()))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reconcile transaction: %w", err)
	}
	return nil
}

const accountColumns = `
	id, handle, last_event_at, last_polled_at, etag, last_modified,
	interval_minutes, activity_tier, ema_minutes, event_count, next_due_at`

// DueAccounts returns accounts whose next_due_at has passed, oldest due first.
func (r *Repository) DueAccounts(ctx context.Context, now time.Time) ([]domain.TrackedAccount, error) {
	rows, err := r.client.Pool().Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE next_due_at <= $1 ORDER BY next_due_at ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.TrackedAccount
	for rows.Next() {
		var acct domain.TrackedAccount
		var tier string
		if err := rows.Scan(
			&acct.ID, &acct.Handle, &acct.LastEventAt, &acct.LastPolledAt,
			&acct.ETag, &acct.LastModified, &acct.IntervalMinute, &tier,
			&acct.EMAMinutes, &acct.EventCount, &acct.NextDueAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		acct.Tier = domain.ActivityTier(tier)
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due accounts: %w", err)
	}
	return accounts, nil
}

// RecordNotModified refreshes poll bookkeeping after a 304. The interval is
// left untouched.
func (r *Repository) RecordNotModified(ctx context.Context, accountID int64, polledAt, nextDueAt time.Time) error {
	_, err := r.client.Pool().Exec(ctx,
		`UPDATE accounts SET last_polled_at = $1, next_due_at = $2 WHERE id = $3`,
		polledAt, nextDueAt, accountID)
	if err != nil {
		return fmt.Errorf("failed to record not-modified poll: %w", err)
	}
	return nil
}

// DeferAccount pushes an account's next poll to a later time.
func (r *Repository) DeferAccount(ctx context.Context, accountID int64, nextDueAt time.Time) error {
	_, err := r.client.Pool().Exec(ctx,
		`UPDATE accounts SET next_due_at = $1 WHERE id = $2`,
		nextDueAt, accountID)
	if err != nil {
		return fmt.Errorf("failed to defer account: %w", err)
	}
	return nil
}

// EventTimes returns the stored star timestamps for one account in ascending
// order.
func (r *Repository) EventTimes(ctx context.Context, accountID int64) ([]time.Time, error) {
	rows, err := r.client.Pool().Query(ctx,
		`SELECT occurred_at FROM star_events WHERE account_id = $1 ORDER BY occurred_at ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan event time: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event times: %w", err)
	}
	return times, nil
}

// RecordEvents inserts one account's batch atomically. Events already present
// under the (account, repo, occurred_at) key are skipped; the returned count
// covers only genuinely new rows. Cache validators and poll bookkeeping are
// updated in the same transaction so readers never see a half-applied batch.
func (r *Repository) RecordEvents(ctx context.Context, batch repository.EventBatch) (int, error) {
	tx, err := r.client.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	var newest *time.Time
	for _, ev := range batch.Events {
		var topics any
		if len(ev.RepoTopics) > 0 {
			encoded, err := json.Marshal(ev.RepoTopics)
			if err != nil {
				return 0, fmt.Errorf("failed to encode topics for %s: %w", ev.RepoFullName, err)
			}
			topics = encoded
		}

		ct, err := tx.Exec(ctx, `
			INSERT INTO star_events
				(account_id, repo_full_name, repo_html_url, repo_description,
				 repo_language, repo_topics, occurred_at, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT ON CONSTRAINT star_events_dedup DO NOTHING`,
			batch.Account.ID, ev.RepoFullName, ev.RepoHTMLURL,
			nullIfEmpty(ev.RepoDescription), nullIfEmpty(ev.RepoLanguage),
			topics, ev.OccurredAt, ev.ObservedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert star event %s: %w", ev.RepoFullName, err)
		}
		inserted += int(ct.RowsAffected())

		if newest == nil || ev.OccurredAt.After(*newest) {
			t := ev.OccurredAt
			newest = &t
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET
			last_polled_at = $1,
			etag = CASE WHEN $2 <> '' THEN $2 ELSE etag END,
			last_modified = CASE WHEN $3 <> '' THEN $3 ELSE last_modified END,
			event_count = event_count + $4
		WHERE id = $5`,
		batch.PolledAt, batch.ETag, batch.LastModified, inserted, batch.Account.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update account after batch: %w", err)
	}

	if newest != nil {
		_, err = tx.Exec(ctx, `
			UPDATE accounts SET last_event_at = $1
			WHERE id = $2 AND (last_event_at IS NULL OR last_event_at < $1)`,
			*newest, batch.Account.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to advance last_event_at: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return inserted, nil
}

// UpdateSchedule stores a recomputed polling schedule.
func (r *Repository) UpdateSchedule(ctx context.Context, update repository.ScheduleUpdate) error {
	_, err := r.client.Pool().Exec(ctx, `
		UPDATE accounts SET
			interval_minutes = $1,
			activity_tier = $2,
			ema_minutes = $3,
			next_due_at = $4
		WHERE id = $5`,
		update.IntervalMinutes, string(update.Tier), update.EMAMinutes,
		update.NextDueAt, update.AccountID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

const eventColumns = `
	e.sequence, a.handle, e.repo_full_name, e.repo_html_url,
	COALESCE(e.repo_description, ''), COALESCE(e.repo_language, ''),
	COALESCE(e.repo_topics, '[]'::jsonb), e.occurred_at, e.observed_at,
	a.activity_tier`

// QueryEvents runs the filtered, paginated event query plus the paired count
// and newest-observed queries over the same predicates.
func (r *Repository) QueryEvents(ctx context.Context, filter repository.EventFilter) (*repository.QueryResult, error) {
	filter = filter.Normalize()
	where, args := buildWhere(filter.Predicates())

	result := &repository.QueryResult{}

	countSQL := `SELECT COUNT(*) FROM star_events e JOIN accounts a ON a.id = e.account_id ` + where
	if err := r.client.Pool().QueryRow(ctx, countSQL, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	newestSQL := `SELECT MAX(e.observed_at) FROM star_events e JOIN accounts a ON a.id = e.account_id ` + where
	if err := r.client.Pool().QueryRow(ctx, newestSQL, args...).Scan(&result.NewestObservedAt); err != nil {
		return nil, fmt.Errorf("failed to query newest observed time: %w", err)
	}

	pageSQL := fmt.Sprintf(`
		SELECT %s
		FROM star_events e JOIN accounts a ON a.id = e.account_id
		%s
		%s
		LIMIT $%d OFFSET $%d`,
		eventColumns, where, orderClause(filter.Sort), len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), filter.PageSize, filter.Offset())

	rows, err := r.client.Pool().Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return result, nil
}

// RecentEvents returns the newest events by ingestion time, unfiltered.
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]domain.StarEvent, error) {
	rows, err := r.client.Pool().Query(ctx, `
		SELECT `+eventColumns+`
		FROM star_events e JOIN accounts a ON a.id = e.account_id
		ORDER BY e.observed_at DESC, e.sequence DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []domain.StarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent events: %w", err)
	}
	return events, nil
}

// OptionsSnapshot aggregates distinct filter values with counts, ordered by
// count descending then name ascending.
func (r *Repository) OptionsSnapshot(ctx context.Context) (*repository.OptionsSnapshot, error) {
	snap := &repository.OptionsSnapshot{}

	rows, err := r.client.Pool().Query(ctx, `
		SELECT repo_language, COUNT(*) AS count
		FROM star_events
		WHERE repo_language IS NOT NULL AND repo_language <> ''
		GROUP BY repo_language
		ORDER BY count DESC, repo_language ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate languages: %w", err)
	}
	for rows.Next() {
		var lc repository.LanguageCount
		if err := rows.Scan(&lc.Name, &lc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan language row: %w", err)
		}
		snap.Languages = append(snap.Languages, lc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating languages: %w", err)
	}

	rows, err = r.client.Pool().Query(ctx, `
		SELECT activity_tier, COUNT(*) AS count
		FROM accounts
		GROUP BY activity_tier
		ORDER BY count DESC, activity_tier ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate activity tiers: %w", err)
	}
	for rows.Next() {
		var tc repository.TierCount
		if err := rows.Scan(&tc.Tier, &tc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tier row: %w", err)
		}
		snap.Tiers = append(snap.Tiers, tc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tiers: %w", err)
	}

	rows, err = r.client.Pool().Query(ctx, `
		SELECT a.handle, COUNT(*) AS count
		FROM star_events e JOIN accounts a ON a.id = e.account_id
		GROUP BY a.id, a.handle
		ORDER BY count DESC, a.handle ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate accounts: %w", err)
	}
	for rows.Next() {
		var ac repository.AccountCount
		if err := rows.Scan(&ac.Handle, &ac.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		snap.Accounts = append(snap.Accounts, ac)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	if err := r.client.Pool().QueryRow(ctx,
		`SELECT MAX(observed_at) FROM star_events`).Scan(&snap.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to query newest observation: %w", err)
	}

	return snap, nil
}

// NextDueByTier returns the earliest scheduled check per activity tier.
func (r *Repository) NextDueByTier(ctx context.Context) (*repository.NextDueByTier, error) {
	rows, err := r.client.Pool().Query(ctx, `
		SELECT activity_tier, MIN(next_due_at)
		FROM accounts
		GROUP BY activity_tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to query next due times: %w", err)
	}
	defer rows.Close()

	summary := &repository.NextDueByTier{}
	for rows.Next() {
		var tier string
		var due *time.Time
		if err := rows.Scan(&tier, &due); err != nil {
			return nil, fmt.Errorf("failed to scan next due row: %w", err)
		}
		switch domain.ActivityTier(tier) {
		case domain.TierHigh:
			summary.High = due
		case domain.TierMedium:
			summary.Medium = due
		case domain.TierLow:
			summary.Low = due
		default:
			summary.Unknown = due
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating next due rows: %w", err)
	}
	return summary, nil
}

// Ping checks database liveness.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Pool().Ping(ctx)
}

// Close releases the underlying pool.
func (r *Repository) Close() {
	r.client.Close()
}

type eventScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row eventScanner) (domain.StarEvent, error) {
	var ev domain.StarEvent
	var topics []byte
	var tier string
	if err := row.Scan(
		&ev.Sequence, &ev.AccountHandle, &ev.RepoFullName, &ev.RepoHTMLURL,
		&ev.RepoDescription, &ev.RepoLanguage, &topics,
		&ev.OccurredAt, &ev.ObservedAt, &tier,
	); err != nil {
		return ev, fmt.Errorf("failed to scan event row: %w", err)
	}
	if err := json.Unmarshal(topics, &ev.RepoTopics); err != nil {
		ev.RepoTopics = nil
	}
	ev.AccountTier = tier
	return ev, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
