package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/api"
	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/progress/sinks"
)

// scheduledWindowDays is how far ahead a cron-triggered scrape looks.
const scheduledWindowDays = 14

// newServeCmd creates the 'serve' subcommand: the long-running HTTP
// mode with job submission endpoints, Prometheus metrics, and optional
// cron schedules for recurring scrapes and document syncs.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with scheduled scrapes and syncs",
		Long: `Serves the job management API: submit, inspect, restart, and clone
scrape and sync jobs over HTTP, with live run state, per-job report
files, and Prometheus metrics. Cron specs in the schedule config
section trigger recurring runs across every configured county.`,

		RunE: runServeCommand,
	}
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()
	ctx := cmd.Context()

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	opts := syncOptions{
		Headless:      cfg.Browser.Headless,
		Workers:       cfg.Portal.Workers,
		SkipCompleted: cfg.Scrape.SkipCompleted,
		SkipFailed:    !cfg.Scrape.RetryFailed,
		ForceValidate: cfg.Scrape.ForceValidateDownloaded,
	}

	// start runs one submitted job in the background. Jobs inherit the
	// serve context so SIGTERM drains them.
	start := func(job auction.Job) {
		go func() {
			var runErr error
			switch job.Kind {
			case auction.JobKindSync:
				runErr = executeSyncJob(ctx, appInstance, job, opts, promSink)
			default:
				runErr = executeScrapeJob(ctx, appInstance, job, cfg.Browser.Headless, promSink)
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				logger.Error("job run failed",
					zap.String("job_id", job.ID),
					zap.String("kind", string(job.Kind)),
					zap.Error(runErr))
			}
		}()
	}

	apiServer := api.NewServer(
		appInstance.JobEngine(),
		appInstance.JobStore(),
		appInstance.Prospects(),
		appInstance.Tracker(),
		start,
		metricsHandler,
		cfg.Storage.ReportDir,
		logger.Named("api"),
	)

	scheduler, err := buildScheduler(ctx, appInstance, start)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// buildScheduler wires the configured cron specs. A scheduled scrape
// submits one job per configured county covering the next two weeks of
// auction dates; a scheduled sync covers the configured county filter.
// Scopes already held by a running job are skipped, not queued.
func buildScheduler(ctx context.Context, a App, start func(auction.Job)) (*cron.Cron, error) {
	cfg := a.Config()
	logger := a.Logger()
	c := cron.New()

	submit := func(kind auction.JobKind, scope auction.JobScope) {
		job, err := a.JobEngine().Submit(ctx, kind, scope)
		switch {
		case errors.Is(err, auction.ErrJobInProgress):
			logger.Info("scheduled run skipped, scope busy",
				zap.String("kind", string(kind)), zap.String("county", scope.County))
		case err != nil:
			logger.Error("scheduled submit failed",
				zap.String("kind", string(kind)), zap.String("county", scope.County), zap.Error(err))
		default:
			start(job)
		}
	}

	saleType := auction.ProspectType(cfg.Scrape.ProspectType)
	if saleType == "" {
		saleType = auction.TypeTaxDeed
	}

	if spec := cfg.Schedule.ScrapeSpec; spec != "" {
		_, err := c.AddFunc(spec, func() {
			today := time.Now().UTC().Truncate(24 * time.Hour)
			for county := range cfg.Counties {
				submit(auction.JobKindScrape, auction.JobScope{
					State:     cfg.Scrape.State,
					County:    county,
					Type:      saleType,
					StartDate: today,
					EndDate:   today.AddDate(0, 0, scheduledWindowDays),
					DryRun:    cfg.Scrape.DryRun,
				})
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule.scrape_spec: %w", err)
		}
	}

	if spec := cfg.Schedule.SyncSpec; spec != "" {
		counties := cfg.Scrape.Counties
		if len(counties) == 0 {
			counties = []string{""}
		}
		_, err := c.AddFunc(spec, func() {
			for _, county := range counties {
				submit(auction.JobKindSync, auction.JobScope{
					State:  cfg.Scrape.State,
					County: county,
					Type:   saleType,
					DryRun: cfg.Scrape.DryRun,
				})
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule.sync_spec: %w", err)
		}
	}

	return c, nil
}
