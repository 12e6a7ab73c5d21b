package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/overageworks/deedwatch/internal/auction"
)

func testScope() auction.JobScope {
	return auction.JobScope{
		State:     "FL",
		County:    "duval",
		Type:      auction.TypeTaxDeed,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	job := auction.Job{
		ID:        uuid.NewString(),
		Kind:      auction.JobKindScrape,
		Scope:     testScope(),
		Status:    auction.JobStatusPending,
		Submitted: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, job.Kind, pgxmock.AnyArg(), job.Status, pgxmock.AnyArg(), "", job.Submitted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Create(context.Background(), job))

	scopeJSON := []byte(`{"state":"FL","county":"duval","prospect_type":"TD","start_date":"2026-03-01T00:00:00Z","end_date":"2026-03-31T00:00:00Z"}`)
	mock.ExpectQuery("SELECT id, kind, scope").
		WithArgs(job.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "scope", "status", "counters", "error_text",
			"submitted_at", "started_at", "completed_at",
		}).AddRow(job.ID, job.Kind, scopeJSON, job.Status, []byte(`{"created":3}`), "", job.Submitted, nil, nil))

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "duval", got.Scope.County)
	require.Equal(t, 3, got.Counters.Created)
	require.Nil(t, got.Started)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunningOverlapQueriesScope(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	scope := testScope()
	mock.ExpectQuery("SELECT id FROM jobs").
		WithArgs(auction.JobKindScrape, "duval", auction.TypeTaxDeed,
			"2026-03-01T00:00:00Z", "2026-03-31T00:00:00Z").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("existing-job"))

	ids, err := store.RunningOverlap(context.Background(), auction.JobKindScrape, scope)
	require.NoError(t, err)
	require.Equal(t, []string{"existing-job"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreResetRequiresTerminal(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Reset(context.Background(), "job-1")
	require.ErrorIs(t, err, auction.ErrJobInProgress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorStoreRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewErrorStore(mock)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO job_errors").
		WithArgs("job-1", auction.CategoryNetwork, "connection reset", "", true, 2, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Record(context.Background(), auction.JobError{
		JobID:     "job-1",
		Category:  auction.CategoryNetwork,
		Message:   "connection reset",
		Retryable: true,
		Attempt:   2,
		CreatedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
