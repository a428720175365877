package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// newTestRepository connects to the database named by POSTGRES_TEST_DSN and
// starts from empty tables. Tests are skipped when the variable is unset so
// the suite stays runnable without a database.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	repo := NewRepository(client, zap.NewNop())
	require.NoError(t, repo.InitSchema(ctx))
	_, err = client.Pool().Exec(ctx, `TRUNCATE star_events, accounts`)
	require.NoError(t, err)
	return repo
}

func trackedAccount(t *testing.T, repo *Repository, id int64, handle string) domain.TrackedAccount {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.ReconcileAccounts(ctx,
		[]domain.AccountRef{{ID: id, Handle: handle}}, 60))

	due, err := repo.DueAccounts(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	return due[0]
}

func TestRecordEvents_DuplicateBatchIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	account := trackedAccount(t, repo, 7, "alice")

	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := repository.EventBatch{
		Account: account,
		Events: []domain.StarEvent{
			{
				RepoFullName: "rust-lang/rust",
				RepoHTMLURL:  "https://github.com/rust-lang/rust",
				RepoTopics:   []string{"compiler"},
				OccurredAt:   observed.Add(-2 * time.Hour),
				ObservedAt:   observed,
			},
			{
				RepoFullName: "golang/go",
				RepoHTMLURL:  "https://github.com/golang/go",
				OccurredAt:   observed.Add(-time.Hour),
				ObservedAt:   observed,
			},
		},
		ETag:     `"abc"`,
		PolledAt: observed,
	}

	inserted, err := repo.RecordEvents(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// The identical batch again: every row hits the dedup key.
	inserted, err = repo.RecordEvents(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	times, err := repo.EventTimes(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, times, 2)

	after := trackedAccount(t, repo, 7, "alice")
	assert.Equal(t, int64(2), after.EventCount)
	require.NotNil(t, after.LastEventAt)
	assert.True(t, after.LastEventAt.Equal(observed.Add(-time.Hour)))
	assert.Equal(t, `"abc"`, after.ETag)
}

func TestRecordEvents_OverlappingBatchCountsOnlyNewRows(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	account := trackedAccount(t, repo, 7, "alice")

	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := domain.StarEvent{
		RepoFullName: "rust-lang/rust",
		RepoHTMLURL:  "https://github.com/rust-lang/rust",
		OccurredAt:   observed.Add(-3 * time.Hour),
		ObservedAt:   observed,
	}
	second := domain.StarEvent{
		RepoFullName: "golang/go",
		RepoHTMLURL:  "https://github.com/golang/go",
		OccurredAt:   observed.Add(-time.Hour),
		ObservedAt:   observed,
	}

	inserted, err := repo.RecordEvents(ctx, repository.EventBatch{
		Account:  account,
		Events:   []domain.StarEvent{first},
		PolledAt: observed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	// Re-fetch overlap: one already-stored event plus one new one.
	inserted, err = repo.RecordEvents(ctx, repository.EventBatch{
		Account:  account,
		Events:   []domain.StarEvent{first, second},
		PolledAt: observed.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	after := trackedAccount(t, repo, 7, "alice")
	assert.Equal(t, int64(2), after.EventCount)
	require.NotNil(t, after.LastEventAt)
	assert.True(t, after.LastEventAt.Equal(second.OccurredAt))
}

func TestRecordEvents_EmptyBatchKeepsValidators(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	account := trackedAccount(t, repo, 7, "alice")

	polled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inserted, err := repo.RecordEvents(ctx, repository.EventBatch{
		Account:  account,
		ETag:     `"first"`,
		PolledAt: polled,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	// An empty validator in a later batch must not erase the stored one.
	inserted, err = repo.RecordEvents(ctx, repository.EventBatch{
		Account:  account,
		PolledAt: polled.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	after := trackedAccount(t, repo, 7, "alice")
	assert.Equal(t, `"first"`, after.ETag)
	assert.Nil(t, after.LastEventAt)
}
