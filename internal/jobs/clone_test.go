package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/overageworks/deedwatch/internal/auction"
)

func TestCloneReplacesDates(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	eng := testEngine(store, &fakeErrorStore{})

	source, err := eng.Submit(context.Background(), auction.JobKindScrape, testScope())
	require.NoError(t, err)

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	clone, err := eng.Clone(context.Background(), source.ID, start, end)
	require.NoError(t, err)

	require.NotEqual(t, source.ID, clone.ID)
	require.Equal(t, source.Kind, clone.Kind)
	require.Equal(t, source.Scope.County, clone.Scope.County)
	require.Equal(t, source.Scope.Type, clone.Scope.Type)
	require.Equal(t, start, clone.Scope.StartDate)
	require.Equal(t, end, clone.Scope.EndDate)
	require.Equal(t, auction.JobStatusPending, clone.Status)
	require.Equal(t, 2, store.created)
}

func TestCloneRejectsInvertedDates(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	eng := testEngine(store, &fakeErrorStore{})

	source, err := eng.Submit(context.Background(), auction.JobKindScrape, testScope())
	require.NoError(t, err)

	_, err = eng.Clone(context.Background(), source.ID,
		time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	var verr *auction.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 1, store.created)
}

func TestCloneShiftedMovesWindow(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	eng := testEngine(store, &fakeErrorStore{})

	source, err := eng.Submit(context.Background(), auction.JobKindSync, testScope())
	require.NoError(t, err)

	clone, err := eng.CloneShifted(context.Background(), source.ID, 7)
	require.NoError(t, err)
	require.Equal(t, source.Scope.StartDate.AddDate(0, 0, 7), clone.Scope.StartDate)
	require.Equal(t, source.Scope.EndDate.AddDate(0, 0, 7), clone.Scope.EndDate)

	back, err := eng.CloneShifted(context.Background(), source.ID, -30)
	require.NoError(t, err)
	require.Equal(t, source.Scope.StartDate.AddDate(0, 0, -30), back.Scope.StartDate)
}

func TestCloneUnknownJob(t *testing.T) {
	t.Parallel()

	eng := testEngine(newFakeJobStore(), &fakeErrorStore{})

	_, err := eng.Clone(context.Background(), "missing",
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
