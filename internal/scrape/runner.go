// Package scrape orchestrates one harvest-and-qualify run: calendar
// pages in, upserted and qualified prospects out, milestones emitted
// along the way.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/harvester"
	"github.com/overageworks/deedwatch/internal/progress"
	"github.com/overageworks/deedwatch/internal/rules"
)

// Runner walks a job scope date by date, harvesting each calendar page
// and pushing every listing through normalize, upsert, and the rule
// engine. A dry run reports what it would do and writes nothing.
type Runner struct {
	harvest   auction.Harvester
	prospects auction.ProspectStore
	rules     *rules.Engine
	emitter   progress.Emitter
	clock     auction.Clock
	log       *zap.Logger
}

// NewRunner builds a scrape runner. emitter may be nil when no progress
// reporting is wanted.
func NewRunner(h auction.Harvester, prospects auction.ProspectStore, engine *rules.Engine, emitter progress.Emitter, clock auction.Clock, log *zap.Logger) *Runner {
	return &Runner{
		harvest:   h,
		prospects: prospects,
		rules:     engine,
		emitter:   emitter,
		clock:     clock,
		log:       log,
	}
}

// Run executes the scope against one county calendar and returns the
// counters accumulated so far, even on failure. baseURL is the county's
// normalized calendar base.
func (r *Runner) Run(ctx context.Context, jobID string, baseURL string, scope auction.JobScope) (auction.JobCounters, error) {
	var counters auction.JobCounters

	id, err := uuid.Parse(jobID)
	if err != nil {
		return counters, &auction.ValidationError{Detail: fmt.Sprintf("job id %q is not a uuid", jobID)}
	}
	binID := progress.UUIDToBytes(id)

	normalized, err := harvester.NormalizeBaseURL(baseURL)
	if err != nil {
		return counters, fmt.Errorf("county base url: %w", err)
	}

	r.emit(progress.Event{
		JobID:  binID,
		TS:     r.clock.Now(),
		Stage:  progress.StageJobStart,
		County: scope.County,
		URL:    normalized,
		Note:   runNote(scope),
	})

	started := r.clock.Now()
	wanted := caseNumberSet(scope.CaseNumbers)

	for date := scope.StartDate; !date.After(scope.EndDate); date = date.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return counters, err
		}

		pageStart := r.clock.Now()
		listings, err := r.harvest.Harvest(ctx, normalized, date)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return counters, ctxErr
			}
			// Nothing harvested means the calendar itself failed to
			// load; that aborts the run so the engine can retry it.
			if len(listings) == 0 {
				r.emit(progress.Event{
					JobID:  binID,
					TS:     r.clock.Now(),
					Stage:  progress.StageJobError,
					County: scope.County,
					URL:    harvester.BuildCalendarURL(normalized, date),
					Note:   err.Error(),
				})
				return counters, fmt.Errorf("harvest %s %s: %w", scope.County, date.Format("2006-01-02"), err)
			}
			// A later page failed; keep what the earlier pages yielded.
			counters.Warnings++
			r.log.Warn("calendar harvest degraded to partial results",
				zap.String("county", scope.County),
				zap.String("date", date.Format("2006-01-02")),
				zap.Int("listings", len(listings)),
				zap.Error(err))
		}

		pageEvt := progress.Event{
			JobID:    binID,
			TS:       r.clock.Now(),
			Stage:    progress.StagePageDone,
			County:   scope.County,
			URL:      harvester.BuildCalendarURL(normalized, date),
			Listings: len(listings),
			Dur:      r.clock.Now().Sub(pageStart),
		}
		if err != nil {
			pageEvt.Note = "partial results: " + err.Error()
		}
		r.emit(pageEvt)

		for _, raw := range listings {
			if err := r.processListing(ctx, binID, raw, scope, date, normalized, wanted, &counters); err != nil {
				return counters, err
			}
		}
	}

	r.emit(progress.Event{
		JobID:  binID,
		TS:     r.clock.Now(),
		Stage:  progress.StageJobDone,
		County: scope.County,
		Dur:    r.clock.Now().Sub(started),
	})
	return counters, nil
}

// processListing normalizes one raw listing and, outside dry runs,
// persists it and records the rule engine's verdict.
func (r *Runner) processListing(ctx context.Context, jobID [16]byte, raw auction.RawListing, scope auction.JobScope, date time.Time, sourceURL string, wanted map[string]struct{}, counters *auction.JobCounters) error {
	p := auction.Normalize(raw, scope.County, scope.Type, date, harvester.BuildCalendarURL(sourceURL, date))
	if scope.State != "" && p.State == "" {
		p.State = scope.State
	}

	if p.CaseNumber == "" {
		counters.Warnings++
		r.log.Warn("listing has no case number, skipped",
			zap.String("county", scope.County),
			zap.String("auction_id", raw.AuctionID),
			zap.String("date", date.Format("2006-01-02")))
		return nil
	}

	if len(wanted) > 0 {
		if _, ok := wanted[p.CaseNumber]; !ok {
			return nil
		}
	}

	verdict, err := r.rules.EvaluateProspect(ctx, p, rules.Location{County: p.County, State: p.State})
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", p.CaseNumber, err)
	}

	if scope.DryRun {
		r.countVerdict(verdict, counters)
		r.emit(progress.Event{
			JobID:      jobID,
			TS:         r.clock.Now(),
			Stage:      progress.StageRecordVerdict,
			County:     p.County,
			CaseNumber: p.CaseNumber,
			Qualified:  verdict.Qualified,
			Note:       "dry run, not persisted",
		})
		return nil
	}

	result, err := r.prospects.Upsert(ctx, p)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", p.CaseNumber, err)
	}
	if result.Created {
		counters.Created++
	} else {
		counters.Updated++
	}
	r.emit(progress.Event{
		JobID:      jobID,
		TS:         r.clock.Now(),
		Stage:      progress.StageRecordUpsert,
		County:     p.County,
		CaseNumber: p.CaseNumber,
		Created:    result.Created,
	})

	status := auction.QualificationDisqualified
	if verdict.Qualified {
		status = auction.QualificationQualified
	}
	if err := r.prospects.SetQualification(ctx, result.ID, status, r.clock.Now()); err != nil {
		return fmt.Errorf("set qualification for %s: %w", p.CaseNumber, err)
	}
	r.countVerdict(verdict, counters)
	r.emit(progress.Event{
		JobID:      jobID,
		TS:         r.clock.Now(),
		Stage:      progress.StageRecordVerdict,
		County:     p.County,
		CaseNumber: p.CaseNumber,
		Qualified:  verdict.Qualified,
		Note:       firstReason(verdict),
	})
	return nil
}

func (r *Runner) countVerdict(v rules.Verdict, counters *auction.JobCounters) {
	if v.Qualified {
		counters.Qualified++
	} else {
		counters.Disqualified++
	}
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

func runNote(scope auction.JobScope) string {
	note := fmt.Sprintf("%s %s %s..%s", scope.County, scope.Type,
		scope.StartDate.Format("2006-01-02"), scope.EndDate.Format("2006-01-02"))
	if scope.DryRun {
		note += " (dry run)"
	}
	return note
}

func firstReason(v rules.Verdict) string {
	if len(v.Reasons) == 0 {
		return ""
	}
	return v.Reasons[0]
}

func caseNumberSet(cases []string) map[string]struct{} {
	if len(cases) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(cases))
	for _, c := range cases {
		set[c] = struct{}{}
	}
	return set
}
