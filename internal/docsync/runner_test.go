package docsync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
)

func TestRunnerFansOutAcrossWorkers(t *testing.T) {
	t.Parallel()

	docs := &fakeDocStore{}
	files := newFakeFileStore()
	syncer := testSyncer(docs, files)

	var mu sync.Mutex
	sessions := 0
	factory := func(context.Context) (Portal, func(), error) {
		mu.Lock()
		sessions++
		mu.Unlock()
		portal := &fakePortal{html: `<html><table class="table-public"></table></html>`}
		return portal, func() {}, nil
	}

	prospects := []auction.Prospect{
		{ID: 1, CaseNumber: "A"}, {ID: 2, CaseNumber: "B"},
		{ID: 3, CaseNumber: "C"}, {ID: 4, CaseNumber: "D"},
	}
	runner := NewRunner(syncer, factory, 2, zap.NewNop())

	seen := map[int64]bool{}
	total, err := runner.Run(context.Background(), prospects, func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, res.Err)
		seen[res.Prospect.ID] = true
	})
	require.NoError(t, err)
	require.Zero(t, total.Scraped)
	require.Len(t, seen, 4)
	require.Equal(t, 2, sessions, "each worker opens exactly one session")
}

func TestRunnerReportsSessionFailuresPerProspect(t *testing.T) {
	t.Parallel()

	syncer := testSyncer(&fakeDocStore{}, newFakeFileStore())
	factory := func(context.Context) (Portal, func(), error) {
		return nil, nil, errors.New("portal unreachable")
	}
	runner := NewRunner(syncer, factory, 1, zap.NewNop())

	var failed int
	_, err := runner.Run(context.Background(), []auction.Prospect{{ID: 1}, {ID: 2}}, func(res Result) {
		require.ErrorContains(t, res.Err, "portal unreachable")
		failed++
	})
	require.NoError(t, err)
	require.Equal(t, 2, failed)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	t.Parallel()

	syncer := testSyncer(&fakeDocStore{}, newFakeFileStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := func(context.Context) (Portal, func(), error) {
		return &fakePortal{html: "<html></html>"}, func() {}, nil
	}
	runner := NewRunner(syncer, factory, 1, zap.NewNop())

	_, err := runner.Run(ctx, []auction.Prospect{{ID: 1}}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
