package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/overageworks/deedwatch/internal/progress/sinks"
)

// ProgressStore implements sinks.ProgressRepository on Postgres,
// accumulating per-county counters for each run.
type ProgressStore struct {
	db DB
}

// NewProgressStore builds a store over an open pool.
func NewProgressStore(db DB) (*ProgressStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &ProgressStore{db: db}, nil
}

const countyStatsUpsertSQL = `
INSERT INTO job_progress (
	job_id, county, listings, created_count, updated_count,
	qualified, disqualified, docs_found, docs_downloaded,
	doc_bytes, doc_errors, last_update
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (job_id, county) DO UPDATE SET
	listings = job_progress.listings + EXCLUDED.listings,
	created_count = job_progress.created_count + EXCLUDED.created_count,
	updated_count = job_progress.updated_count + EXCLUDED.updated_count,
	qualified = job_progress.qualified + EXCLUDED.qualified,
	disqualified = job_progress.disqualified + EXCLUDED.disqualified,
	docs_found = job_progress.docs_found + EXCLUDED.docs_found,
	docs_downloaded = job_progress.docs_downloaded + EXCLUDED.docs_downloaded,
	doc_bytes = job_progress.doc_bytes + EXCLUDED.doc_bytes,
	doc_errors = job_progress.doc_errors + EXCLUDED.doc_errors,
	last_update = GREATEST(job_progress.last_update, EXCLUDED.last_update)`

// UpsertCountyStats applies one collapsed delta to the run's county row.
func (s *ProgressStore) UpsertCountyStats(ctx context.Context, jobID uuid.UUID, county string, delta sinks.CountyDelta) error {
	_, err := s.db.Exec(ctx, countyStatsUpsertSQL,
		jobID, county, delta.Listings, delta.Created, delta.Updated,
		delta.Qualified, delta.Disqualified, delta.DocsFound,
		delta.DocsDownloaded, delta.DocBytes, delta.DocErrors, delta.At)
	if err != nil {
		return fmt.Errorf("upsert county stats for job %s: %w", jobID, err)
	}
	return nil
}
