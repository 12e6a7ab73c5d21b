package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/progress"
)

type fakeRepo struct {
	calls map[string]CountyDelta
}

func (r *fakeRepo) UpsertCountyStats(_ context.Context, _ uuid.UUID, county string, delta CountyDelta) error {
	if r.calls == nil {
		r.calls = map[string]CountyDelta{}
	}
	r.calls[county] = delta
	return nil
}

func TestStoreSinkCollapsesPerCounty(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	sink := NewStoreSink(repo, zap.NewNop())

	jobID := progress.UUIDToBytes(uuid.New())
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []progress.Event{
		{JobID: jobID, TS: ts, Stage: progress.StagePageDone, County: "duval", Listings: 25},
		{JobID: jobID, TS: ts, Stage: progress.StageRecordUpsert, County: "duval", CaseNumber: "A", Created: true},
		{JobID: jobID, TS: ts, Stage: progress.StageRecordUpsert, County: "duval", CaseNumber: "B"},
		{JobID: jobID, TS: ts.Add(time.Minute), Stage: progress.StageRecordVerdict, County: "duval", CaseNumber: "A", Qualified: true},
		{JobID: jobID, TS: ts, Stage: progress.StageDocDownloaded, County: "broward", CaseNumber: "C", Bytes: 4096},
		{JobID: jobID, TS: ts, Stage: progress.StageDocError, County: "broward", CaseNumber: "D"},
		// Events with no county are skipped, not persisted under a blank key.
		{JobID: jobID, TS: ts, Stage: progress.StageJobStart},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, repo.calls, 2)

	duval := repo.calls["duval"]
	require.Equal(t, int64(25), duval.Listings)
	require.Equal(t, int64(1), duval.Created)
	require.Equal(t, int64(1), duval.Updated)
	require.Equal(t, int64(1), duval.Qualified)
	require.Equal(t, ts.Add(time.Minute), duval.At)

	broward := repo.calls["broward"]
	require.Equal(t, int64(1), broward.DocsDownloaded)
	require.Equal(t, int64(4096), broward.DocBytes)
	require.Equal(t, int64(1), broward.DocErrors)
}
