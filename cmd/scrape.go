package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/harvester"
	"github.com/overageworks/deedwatch/internal/progress"
	"github.com/overageworks/deedwatch/internal/progress/sinks"
	"github.com/overageworks/deedwatch/internal/scrape"
)

// newScrapeCmd creates the 'scrape' subcommand: harvest one county's
// auction calendar over a date window and qualify every listing.
func newScrapeCmd() *cobra.Command {
	var (
		county    string
		state     string
		saleType  string
		startDate string
		endDate   string
		dryRun    bool
		headless  bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Harvest a county auction calendar and qualify the listings",
		Long: `Walks the county's public auction calendar day by day, normalizes
each listing into a prospect record, and runs the qualification rule
engine over the results. Runs as a tracked job with retries; progress
lands in the log, the database, and a per-job report file.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			if state == "" {
				state = cfg.Scrape.State
			}
			if saleType == "" {
				saleType = cfg.Scrape.ProspectType
			}
			if saleType == "" {
				saleType = string(auction.TypeTaxDeed)
			}

			start, err := parseDay(startDate)
			if err != nil {
				return fmt.Errorf("start date: %w", err)
			}
			end := start
			if endDate != "" {
				if end, err = parseDay(endDate); err != nil {
					return fmt.Errorf("end date: %w", err)
				}
			}
			if end.Before(start) {
				return fmt.Errorf("end date %s is before start date %s", endDate, startDate)
			}

			scope := auction.JobScope{
				State:     state,
				County:    county,
				Type:      auction.ProspectType(saleType),
				StartDate: start,
				EndDate:   end,
				DryRun:    dryRun,
			}
			if !cmd.Flags().Changed("headless") {
				headless = cfg.Browser.Headless
			}

			job, err := appInstance.JobEngine().Submit(cmd.Context(), auction.JobKindScrape, scope)
			if err != nil {
				return err
			}
			return executeScrapeJob(cmd.Context(), appInstance, job, headless)
		},
	}

	cmd.Flags().StringVar(&county, "county", "", "county to scrape (required)")
	cmd.Flags().StringVar(&state, "state", "", "two-letter state code")
	cmd.Flags().StringVar(&saleType, "type", "", "sale type code: TD, TL, SS, or MF")
	cmd.Flags().StringVar(&startDate, "start-date", "", "first auction date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "last auction date, YYYY-MM-DD (defaults to start date)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate listings without writing prospects")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	_ = cmd.MarkFlagRequired("county")
	_ = cmd.MarkFlagRequired("start-date")

	return cmd
}

// executeScrapeJob runs an already-submitted scrape job to a terminal
// status. Shared between the CLI path and the serve dispatcher.
func executeScrapeJob(ctx context.Context, a App, job auction.Job, headless bool, extraSinks ...progress.Sink) error {
	cfg := a.Config()
	logger := a.Logger()

	browser := harvester.NewBrowser(harvester.Config{
		Headless:          headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavTimeout(),
		PageDelay:         cfg.Browser.PageDelay(),
	}, logger)
	defer browser.Close()

	hub, closeHub, err := newRunHub(a, job.ID, extraSinks...)
	if err != nil {
		return err
	}
	defer closeHub()

	runner := scrape.NewRunner(browser, a.Prospects(), a.RuleEngine(), hub, a.Clock(), logger)
	tracker := a.Tracker()
	tracker.Start(job)

	execErr := a.JobEngine().Execute(ctx, job, func(ctx context.Context) (auction.JobCounters, error) {
		base, err := cfg.CountyBaseURL(job.Scope.County)
		if err != nil {
			return auction.JobCounters{}, &auction.ValidationError{Detail: err.Error()}
		}
		counters, runErr := runner.Run(ctx, job.ID, base, job.Scope)
		tracker.Update(job.ID, counters, "")
		return counters, runErr
	})

	status := auction.JobStatusCompleted
	if execErr != nil {
		status = auction.JobStatusFailed
	}
	tracker.Finish(job.ID, status)
	return execErr
}

// newRunHub builds the progress hub for one job run: structured log
// lines, per-county database rows, and a plain-text report file named
// after the job. The returned closer flushes and releases everything.
func newRunHub(a App, jobID string, extra ...progress.Sink) (*progress.Hub, func(), error) {
	cfg := a.Config()
	logger := a.Logger()

	if err := os.MkdirAll(cfg.Storage.ReportDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create report dir: %w", err)
	}
	reportPath := filepath.Join(cfg.Storage.ReportDir, jobID+".txt")
	report, err := os.Create(reportPath) // #nosec G304 -- path is the report dir plus an engine-issued uuid
	if err != nil {
		return nil, nil, fmt.Errorf("create report file: %w", err)
	}

	hubSinks := []progress.Sink{
		sinks.NewLogSink(logger),
		sinks.NewStoreSink(a.ProgressStore(), logger),
		progress.NewReportSink(report),
	}
	hubSinks = append(hubSinks, extra...)

	hub := progress.NewHub(progress.Config{Logger: logger}, hubSinks...)
	closer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Close(ctx)
		_ = report.Close()
	}
	return hub, closer, nil
}

func parseDay(value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD date", value)
	}
	return t, nil
}
