package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/progress"
)

// CountyDelta is a collapsed batch of per-county progress counters.
type CountyDelta struct {
	Listings       int64
	Created        int64
	Updated        int64
	Qualified      int64
	Disqualified   int64
	DocsFound      int64
	DocsDownloaded int64
	DocBytes       int64
	DocErrors      int64
	At             time.Time
}

// ProgressRepository persists collapsed county counters per run.
type ProgressRepository interface {
	UpsertCountyStats(ctx context.Context, jobID uuid.UUID, county string, delta CountyDelta) error
}

// StoreSink persists progress deltas through a ProgressRepository. It
// collapses per-county counters within each batch to keep write
// amplification down.
type StoreSink struct {
	repo   ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type deltaKey struct {
	jobID  uuid.UUID
	county string
}

// Consume collapses the batch per county and forwards the deltas. It
// respects ctx deadlines and returns repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[deltaKey]*CountyDelta)
	for _, evt := range batch {
		if evt.County == "" {
			continue
		}
		key := deltaKey{jobID: evt.JobUUID(), county: evt.County}
		delta := deltas[key]
		if delta == nil {
			delta = &CountyDelta{}
			deltas[key] = delta
		}
		applyEvent(delta, evt)
	}

	for key, delta := range deltas {
		if err := s.repo.UpsertCountyStats(ctx, key.jobID, key.county, *delta); err != nil {
			return fmt.Errorf("upsert county stats: %w", err)
		}
	}
	return nil
}

func applyEvent(delta *CountyDelta, evt progress.Event) {
	switch evt.Stage {
	case progress.StagePageDone:
		delta.Listings += int64(evt.Listings)
	case progress.StageRecordUpsert:
		if evt.Created {
			delta.Created++
		} else {
			delta.Updated++
		}
	case progress.StageRecordVerdict:
		if evt.Qualified {
			delta.Qualified++
		} else {
			delta.Disqualified++
		}
	case progress.StageDocFound:
		delta.DocsFound++
	case progress.StageDocDownloaded:
		delta.DocsDownloaded++
		delta.DocBytes += evt.Bytes
	case progress.StageDocError:
		delta.DocErrors++
	}
	if evt.TS.After(delta.At) {
		delta.At = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
