package progress

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestReportSinkRendersRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewReportSink(&buf)

	jobID := uuid.New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := func(stage Stage, mutate func(*Event)) Event {
		e := Event{JobID: UUIDToBytes(jobID), TS: ts, Stage: stage}
		if mutate != nil {
			mutate(&e)
		}
		return e
	}

	batch := []Event{
		evt(StageJobStart, func(e *Event) { e.Note = "scrape duval TD" }),
		evt(StagePageDone, func(e *Event) { e.Listings = 25; e.URL = "https://duval.realforeclose.com" }),
		evt(StageRecordUpsert, func(e *Event) { e.CaseNumber = "2026-TD-000123"; e.Created = true }),
		evt(StageRecordUpsert, func(e *Event) { e.CaseNumber = "2026-TD-000124" }),
		evt(StageRecordVerdict, func(e *Event) { e.CaseNumber = "2026-TD-000123"; e.Qualified = true }),
		evt(StageRecordVerdict, func(e *Event) {
			e.CaseNumber = "2026-TD-000124"
			e.Note = "surplus amount $500 below minimum $10000"
		}),
		evt(StageDocDownloaded, func(e *Event) {
			e.CaseNumber = "2026-TD-000123"
			e.Note = "surplus_claim.pdf"
			e.Bytes = 2048
		}),
		evt(StageJobDone, func(e *Event) { e.Dur = 95 * time.Second }),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	out := buf.String()
	require.Contains(t, out, "=== run "+jobID.String()+" started")
	require.Contains(t, out, "page done: 25 listings")
	require.Contains(t, out, "2026-TD-000123         created")
	require.Contains(t, out, "2026-TD-000124         updated")
	require.Contains(t, out, "qualified")
	require.Contains(t, out, "disqualified")
	require.Contains(t, out, "below minimum")
	require.Contains(t, out, "downloaded surplus_claim.pdf (2048 bytes)")
	require.Contains(t, out, "1 created, 1 updated, 1 qualified, 1 disqualified")
	require.Contains(t, out, "finished in 1m35s")
}

func TestOpenReportAppends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jobID := uuid.New()

	sink, err := OpenReport(dir, jobID.String())
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), []Event{{
		JobID: UUIDToBytes(jobID),
		TS:    time.Now().UTC(),
		Stage: StageJobStart,
		Note:  "first run",
	}}))
	require.NoError(t, sink.Close(context.Background()))

	sink, err = OpenReport(dir, jobID.String())
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), []Event{{
		JobID: UUIDToBytes(jobID),
		TS:    time.Now().UTC(),
		Stage: StageJobError,
		Note:  "second run failed",
	}}))
	require.NoError(t, sink.Close(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, jobID.String()+".txt"))
	require.NoError(t, err)
	require.Contains(t, string(data), "first run")
	require.Contains(t, string(data), "second run failed")
}
