package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/overageworks/deedwatch/internal/auction"
)

// Clone submits a new pending job copying an existing job's kind and
// scope with a replacement date range. The source job may be in any
// state; the clone still contends for the scope lock like any
// submission.
func (e *Engine) Clone(ctx context.Context, jobID string, start, end time.Time) (auction.Job, error) {
	source, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return auction.Job{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if end.Before(start) {
		return auction.Job{}, &auction.ValidationError{Detail: "end date before start date"}
	}

	scope := source.Scope
	scope.StartDate = start
	scope.EndDate = end
	return e.Submit(ctx, source.Kind, scope)
}

// CloneShifted submits a clone with both scope dates moved by the given
// number of days. Negative shifts move the window backward.
func (e *Engine) CloneShifted(ctx context.Context, jobID string, days int) (auction.Job, error) {
	source, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return auction.Job{}, fmt.Errorf("load job %s: %w", jobID, err)
	}

	scope := source.Scope
	scope.StartDate = scope.StartDate.AddDate(0, 0, days)
	scope.EndDate = scope.EndDate.AddDate(0, 0, days)
	return e.Submit(ctx, source.Kind, scope)
}
