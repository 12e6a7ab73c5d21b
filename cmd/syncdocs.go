package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/docsync"
	"github.com/overageworks/deedwatch/internal/progress"
)

// syncOptions carries the per-run knobs a sync job needs beyond its
// persisted scope.
type syncOptions struct {
	Headless      bool
	Workers       int
	SkipCompleted bool
	SkipFailed    bool
	ForceValidate bool
}

// newSyncDocsCmd creates the 'syncdocs' subcommand: refresh the local
// document archive for qualified prospects from the partner portal.
func newSyncDocsCmd() *cobra.Command {
	var (
		state         string
		saleType      string
		counties      []string
		caseNumbers   []string
		startDate     string
		endDate       string
		skipCompleted bool
		noRetryFailed bool
		dryRun        bool
		headless      bool
		forceValidate bool
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "syncdocs",
		Short: "Sync case documents for qualified prospects from the partner portal",
		Long: `Selects qualified prospects matching the given filters, scrapes each
case's document listing from the partner portal, inserts rows for
documents not seen before, and downloads whatever is flagged for
unattended download. Each run is a tracked job; a pool of workers each
owns its own portal browser session.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if cfg.Portal.URL == "" {
				return fmt.Errorf("portal.url is not set")
			}

			if state == "" {
				state = cfg.Scrape.State
			}
			if saleType == "" {
				saleType = cfg.Scrape.ProspectType
			}
			if len(counties) == 0 {
				counties = cfg.Scrape.Counties
			}
			if len(caseNumbers) == 0 {
				caseNumbers = cfg.Scrape.CaseNumbers
			}
			if startDate == "" {
				startDate = cfg.Scrape.AuctionStartDate
			}
			if endDate == "" {
				endDate = cfg.Scrape.AuctionEndDate
			}
			if !cmd.Flags().Changed("skip-completed") {
				skipCompleted = cfg.Scrape.SkipCompleted
			}
			if !cmd.Flags().Changed("no-retry-failed") {
				noRetryFailed = !cfg.Scrape.RetryFailed
			}
			if !cmd.Flags().Changed("headless") {
				headless = cfg.Browser.Headless
			}
			if !cmd.Flags().Changed("force-validate-downloaded") {
				forceValidate = cfg.Scrape.ForceValidateDownloaded
			}
			if workers <= 0 {
				workers = cfg.Portal.Workers
			}

			scope := auction.JobScope{
				State:       state,
				Type:        auction.ProspectType(saleType),
				CaseNumbers: caseNumbers,
				DryRun:      dryRun,
			}
			if startDate != "" {
				if scope.StartDate, err = parseDay(startDate); err != nil {
					return fmt.Errorf("auction start date: %w", err)
				}
			}
			if endDate != "" {
				if scope.EndDate, err = parseDay(endDate); err != nil {
					return fmt.Errorf("auction end date: %w", err)
				}
			}

			opts := syncOptions{
				Headless:      headless,
				Workers:       workers,
				SkipCompleted: skipCompleted,
				SkipFailed:    noRetryFailed,
				ForceValidate: forceValidate,
			}

			// No county filter means one job covering every county.
			if len(counties) == 0 {
				counties = []string{""}
			}
			for _, county := range counties {
				countyScope := scope
				countyScope.County = county
				job, err := appInstance.JobEngine().Submit(cmd.Context(), auction.JobKindSync, countyScope)
				if err != nil {
					return err
				}
				if err := executeSyncJob(cmd.Context(), appInstance, job, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "two-letter state code filter")
	cmd.Flags().StringVar(&saleType, "type", "", "sale type code filter: TD, TL, SS, or MF")
	cmd.Flags().StringSliceVar(&counties, "counties", nil, "counties to sync (one job per county)")
	cmd.Flags().StringSliceVar(&caseNumbers, "case-numbers", nil, "restrict the run to these case numbers")
	cmd.Flags().StringVar(&startDate, "auction-start-date", "", "earliest auction date, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "auction-end-date", "", "latest auction date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&skipCompleted, "skip-completed", false, "only visit prospects with pending documents")
	cmd.Flags().BoolVar(&noRetryFailed, "no-retry-failed", false, "leave documents with a recorded download error alone")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned inserts and downloads without writing anything")
	cmd.Flags().BoolVar(&headless, "headless", true, "run portal browsers headless")
	cmd.Flags().BoolVar(&forceValidate, "force-validate-downloaded", false, "audit downloaded files on disk and re-queue missing or corrupt ones")
	cmd.Flags().IntVar(&workers, "workers", 0, "portal worker count (defaults to portal.workers)")

	return cmd
}

// executeSyncJob runs an already-submitted sync job to a terminal
// status. Shared between the CLI path and the serve dispatcher.
func executeSyncJob(ctx context.Context, a App, job auction.Job, opts syncOptions, extraSinks ...progress.Sink) error {
	cfg := a.Config()
	logger := a.Logger()

	jobUUID, err := uuid.Parse(job.ID)
	if err != nil {
		return fmt.Errorf("job id %q is not a uuid", job.ID)
	}
	hub, closeHub, err := newRunHub(a, job.ID, extraSinks...)
	if err != nil {
		return err
	}
	defer closeHub()

	syncer := docsync.NewSyncer(a.Documents(), a.Files(), a.Clock(), logger)
	syncer.SkipFailed = opts.SkipFailed
	syncer.DryRun = job.Scope.DryRun
	syncer.Emitter = hub
	syncer.JobID = progress.UUIDToBytes(jobUUID)

	factory := func(ctx context.Context) (docsync.Portal, func(), error) {
		sess, err := docsync.NewSession(ctx, docsync.SessionConfig{
			PortalURL:         cfg.Portal.URL,
			Headless:          opts.Headless,
			UserAgent:         cfg.Browser.UserAgent,
			NavigationTimeout: cfg.Portal.NavTimeout(),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return sess, sess.Close, nil
	}
	runner := docsync.NewRunner(syncer, factory, opts.Workers, logger)

	tracker := a.Tracker()
	tracker.Start(job)

	execErr := a.JobEngine().Execute(ctx, job, func(ctx context.Context) (auction.JobCounters, error) {
		var counters auction.JobCounters

		prospects, err := a.Prospects().List(ctx, syncFilter(job.Scope, opts.SkipCompleted))
		if err != nil {
			return counters, fmt.Errorf("list prospects: %w", err)
		}
		logger.Info("sync run selected prospects",
			zap.String("job_id", job.ID),
			zap.String("county", job.Scope.County),
			zap.Int("prospects", len(prospects)))
		hub.Emit(progress.Event{
			JobID:  syncer.JobID,
			TS:     a.Clock().Now(),
			Stage:  progress.StageJobStart,
			County: job.Scope.County,
			Note:   fmt.Sprintf("%d prospects selected", len(prospects)),
		})

		if opts.ForceValidate && !job.Scope.DryRun {
			for _, p := range prospects {
				requeued, err := syncer.Revalidate(ctx, p.ID)
				if err != nil {
					return counters, fmt.Errorf("revalidate prospect %d: %w", p.ID, err)
				}
				if requeued > 0 {
					logger.Info("re-queued documents after validation",
						zap.Int64("prospect_id", p.ID), zap.Int("requeued", requeued))
				}
			}
		}

		var mu sync.Mutex
		_, runErr := runner.Run(ctx, prospects, func(res docsync.Result) {
			mu.Lock()
			counters.DocsScraped += res.Stats.Scraped
			counters.DocsNew += res.Stats.New
			counters.DocsDownloaded += res.Stats.Downloaded
			counters.DocErrors += res.Stats.DownloadErrors
			if res.Err != nil {
				counters.DocErrors++
				logger.Warn("prospect sync failed",
					zap.String("case_number", res.Prospect.CaseNumber), zap.Error(res.Err))
			}
			snapshot := counters
			mu.Unlock()
			tracker.Update(job.ID, snapshot, res.Prospect.CaseNumber)
		})

		doneEvt := progress.Event{
			JobID:  syncer.JobID,
			TS:     a.Clock().Now(),
			Stage:  progress.StageJobDone,
			County: job.Scope.County,
			Note: fmt.Sprintf("%d scraped, %d new, %d downloaded, %d errors",
				counters.DocsScraped, counters.DocsNew, counters.DocsDownloaded, counters.DocErrors),
		}
		if runErr != nil {
			doneEvt.Stage = progress.StageJobError
			doneEvt.Note = runErr.Error()
		}
		hub.Emit(doneEvt)
		return counters, runErr
	})

	status := auction.JobStatusCompleted
	if execErr != nil {
		status = auction.JobStatusFailed
	}
	tracker.Finish(job.ID, status)
	return execErr
}

// syncFilter translates a sync job's scope into the prospect query.
// Only qualified prospects are ever visited.
func syncFilter(scope auction.JobScope, pendingOnly bool) auction.ProspectFilter {
	filter := auction.ProspectFilter{
		State:         scope.State,
		County:        scope.County,
		Type:          scope.Type,
		CaseNumbers:   scope.CaseNumbers,
		Qualification: auction.QualificationQualified,
		PendingDocs:   pendingOnly,
	}
	if !scope.StartDate.IsZero() {
		start := scope.StartDate
		filter.AuctionStart = &start
	}
	if !scope.EndDate.IsZero() {
		end := scope.EndDate
		filter.AuctionEnd = &end
	}
	return filter
}
