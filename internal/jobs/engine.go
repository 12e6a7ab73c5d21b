// Package jobs runs scrape and sync work units through a persisted,
// scope-locked lifecycle with bounded retries.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
)

// RunFunc does the actual work of a job attempt. It returns the
// counters accumulated so far even on failure, so partial progress
// survives into the job row.
type RunFunc func(ctx context.Context) (auction.JobCounters, error)

// Engine owns the job lifecycle: submission with the scope lock,
// attempt retries with classified errors, and terminal status writes.
type Engine struct {
	jobs  auction.JobStore
	errs  auction.ErrorStore
	clock auction.Clock
	log   *zap.Logger

	// sleep is swapped in tests to skip the real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine builds a job engine over the given stores.
func NewEngine(jobs auction.JobStore, errs auction.ErrorStore, clock auction.Clock, log *zap.Logger) *Engine {
	return &Engine{
		jobs:  jobs,
		errs:  errs,
		clock: clock,
		log:   log,
		sleep: sleepCtx,
	}
}

// Submit persists a new pending job unless a non-terminal job already
// covers an overlapping scope, in which case nothing is written and
// auction.ErrJobInProgress is returned.
func (e *Engine) Submit(ctx context.Context, kind auction.JobKind, scope auction.JobScope) (auction.Job, error) {
	running, err := e.jobs.RunningOverlap(ctx, kind, scope)
	if err != nil {
		return auction.Job{}, fmt.Errorf("check scope lock: %w", err)
	}
	if len(running) > 0 {
		return auction.Job{}, fmt.Errorf("scope held by job %s: %w", running[0], auction.ErrJobInProgress)
	}

	job := auction.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Scope:     scope,
		Status:    auction.JobStatusPending,
		Submitted: e.clock.Now(),
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return auction.Job{}, fmt.Errorf("create job: %w", err)
	}
	e.log.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.String("county", scope.County),
		zap.String("type", string(scope.Type)))
	return job, nil
}

// Execute runs the job payload with classified retries. Each failed
// attempt is recorded as a job error row; non-retryable failures and
// attempt exhaustion move the job to failed. The returned error is the
// final attempt's error, already persisted on the job row.
func (e *Engine) Execute(ctx context.Context, job auction.Job, fn RunFunc) error {
	if err := e.jobs.SetStarted(ctx, job.ID, e.clock.Now()); err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}
	if err := e.jobs.SetStatus(ctx, job.ID, auction.JobStatusRunning, "", job.Counters); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	var counters auction.JobCounters
	for attempt := 1; ; attempt++ {
		var err error
		counters, err = fn(ctx)
		if err == nil {
			return e.finish(ctx, job.ID, auction.JobStatusCompleted, "", counters)
		}

		category, retryable := auction.Classify(err)
		e.recordAttempt(ctx, job.ID, attempt, category, retryable, err)

		if !retryable || !auction.ShouldRetry(attempt, err) {
			if finErr := e.finish(ctx, job.ID, auction.JobStatusFailed, err.Error(), counters); finErr != nil {
				return finErr
			}
			return err
		}

		// Backoff is 0-indexed; the first failed attempt waits the
		// first schedule entry.
		delay := auction.Backoff(attempt - 1)
		e.log.Warn("attempt failed, retrying",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.String("category", string(category)),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			if finErr := e.finish(ctx, job.ID, auction.JobStatusFailed, sleepErr.Error(), counters); finErr != nil {
				return finErr
			}
			return sleepErr
		}
	}
}

// Run submits and executes in one call; the common path for the CLI.
func (e *Engine) Run(ctx context.Context, kind auction.JobKind, scope auction.JobScope, fn RunFunc) (auction.Job, error) {
	job, err := e.Submit(ctx, kind, scope)
	if err != nil {
		return auction.Job{}, err
	}
	if err := e.Execute(ctx, job, fn); err != nil {
		return job, err
	}
	return e.jobs.Get(ctx, job.ID)
}

// Restart moves a terminal job back to pending and executes it again
// with the same scope.
func (e *Engine) Restart(ctx context.Context, jobID string, fn RunFunc) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, auction.ErrJobInProgress)
	}
	if err := e.jobs.Reset(ctx, jobID); err != nil {
		return fmt.Errorf("reset job %s: %w", jobID, err)
	}
	job.Counters = auction.JobCounters{}
	return e.Execute(ctx, job, fn)
}

func (e *Engine) finish(ctx context.Context, jobID string, status auction.JobStatus, errText string, counters auction.JobCounters) error {
	if err := e.jobs.SetStatus(ctx, jobID, status, errText, counters); err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}
	if err := e.jobs.SetCompleted(ctx, jobID, e.clock.Now()); err != nil {
		return fmt.Errorf("mark job completed at: %w", err)
	}
	e.log.Info("job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
		zap.Int("created", counters.Created),
		zap.Int("updated", counters.Updated),
		zap.Int("docs_downloaded", counters.DocsDownloaded))
	return nil
}

func (e *Engine) recordAttempt(ctx context.Context, jobID string, attempt int, category auction.ErrorCategory, retryable bool, err error) {
	record := auction.JobError{
		JobID:     jobID,
		Category:  category,
		Message:   err.Error(),
		Retryable: retryable,
		Attempt:   attempt,
		CreatedAt: e.clock.Now(),
	}
	if storeErr := e.errs.Record(ctx, record); storeErr != nil {
		e.log.Error("failed to record job error", zap.String("job_id", jobID), zap.Error(storeErr))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
