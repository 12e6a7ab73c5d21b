package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/overageworks/deedwatch/internal/auction"
)

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// JobStore implements auction.JobStore on Postgres. The scope lock is
// enforced through persisted job status, so it holds across processes.
type JobStore struct {
	db DB
}

// NewJobStore builds a store over an open pool.
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &JobStore{db: db}, nil
}

// Create persists a new job row.
func (s *JobStore) Create(ctx context.Context, job auction.Job) error {
	scopeJSON, err := json.Marshal(job.Scope)
	if err != nil {
		return fmt.Errorf("marshal job scope: %w", err)
	}
	countersJSON, err := json.Marshal(job.Counters)
	if err != nil {
		return fmt.Errorf("marshal job counters: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO jobs (id, kind, scope, status, counters, error_text, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		job.ID, job.Kind, scopeJSON, job.Status, countersJSON, job.ErrorText, job.Submitted)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads one job or returns ErrNotFound.
func (s *JobStore) Get(ctx context.Context, jobID string) (auction.Job, error) {
	var (
		job          auction.Job
		scopeJSON    []byte
		countersJSON []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, kind, scope, status, counters, error_text,
			submitted_at, started_at, completed_at
		FROM jobs WHERE id = $1`, jobID,
	).Scan(&job.ID, &job.Kind, &scopeJSON, &job.Status, &countersJSON,
		&job.ErrorText, &job.Submitted, &job.Started, &job.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return auction.Job{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return auction.Job{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err := json.Unmarshal(scopeJSON, &job.Scope); err != nil {
		return auction.Job{}, fmt.Errorf("decode scope for job %s: %w", jobID, err)
	}
	if len(countersJSON) > 0 {
		if err := json.Unmarshal(countersJSON, &job.Counters); err != nil {
			return auction.Job{}, fmt.Errorf("decode counters for job %s: %w", jobID, err)
		}
	}
	return job, nil
}

const runningOverlapSQL = `
SELECT id FROM jobs
WHERE kind = $1
  AND status IN ('pending', 'running')
  AND scope->>'county' = $2
  AND scope->>'prospect_type' = $3
  AND scope->>'start_date' <= $5
  AND scope->>'end_date' >= $4`

// RunningOverlap returns the IDs of non-terminal jobs whose scope
// covers the same county, type, and an intersecting date range.
// RFC 3339 timestamps compare correctly as text.
func (s *JobStore) RunningOverlap(ctx context.Context, kind auction.JobKind, scope auction.JobScope) ([]string, error) {
	rows, err := s.db.Query(ctx, runningOverlapSQL,
		kind, scope.County, scope.Type,
		scope.StartDate.UTC().Format(time.RFC3339),
		scope.EndDate.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query overlapping jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overlapping jobs: %w", err)
	}
	return ids, nil
}

// SetStatus writes the job's status, final error text, and counters.
func (s *JobStore) SetStatus(ctx context.Context, jobID string, status auction.JobStatus, errText string, counters auction.JobCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal job counters: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs SET status = $1, error_text = $2, counters = $3
		WHERE id = $4`, status, errText, countersJSON, jobID)
	if err != nil {
		return fmt.Errorf("update job %s status: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// SetStarted stamps the run start time.
func (s *JobStore) SetStarted(ctx context.Context, jobID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE jobs SET started_at = $1 WHERE id = $2`, at, jobID)
	if err != nil {
		return fmt.Errorf("update job %s started: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// SetCompleted stamps the run completion time.
func (s *JobStore) SetCompleted(ctx context.Context, jobID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE jobs SET completed_at = $1 WHERE id = $2`, at, jobID)
	if err != nil {
		return fmt.Errorf("update job %s completed: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// Reset moves a terminal job back to pending for another run. Running
// jobs are left alone.
func (s *JobStore) Reset(ctx context.Context, jobID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', error_text = '', counters = '{}'::jsonb,
			started_at = NULL, completed_at = NULL
		WHERE id = $1 AND status IN ('completed', 'failed')`, jobID)
	if err != nil {
		return fmt.Errorf("reset job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not terminal: %w", jobID, auction.ErrJobInProgress)
	}
	return nil
}

// ErrorStore implements auction.ErrorStore on Postgres.
type ErrorStore struct {
	db DB
}

// NewErrorStore builds a store over an open pool.
func NewErrorStore(db DB) (*ErrorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &ErrorStore{db: db}, nil
}

// Record appends one immutable failed-attempt row.
func (s *ErrorStore) Record(ctx context.Context, jobErr auction.JobError) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO job_errors (job_id, category, message, context, retryable, attempt, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		jobErr.JobID, jobErr.Category, jobErr.Message, jobErr.Context,
		jobErr.Retryable, jobErr.Attempt, jobErr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job error: %w", err)
	}
	return nil
}
