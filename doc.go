// Package main hosts the deedwatch entrypoint.
//
// Architecture overview:
//   - Harvest pipeline: internal/harvester renders county auction calendars with headless
//     Chromedp, pages through each date's listings, and parses the rendered blocks with
//     goquery into raw listings. internal/scrape walks a job's date window, normalizes each
//     listing into a prospect (address, amounts as exact decimals, computed surplus), upserts
//     it, and runs the qualification rule engine over it.
//   - Rule engine: internal/rules evaluates county, state, and global rule tiers; the most
//     specific tier that has rules wins and is applied exclusively. Verdicts land on the
//     prospect row with a timestamp.
//   - Document sync: internal/docsync logs a pool of headless portal sessions into the
//     partner document portal, diffs each qualified prospect's document listing against the
//     database, and downloads keyword-flagged documents into the local archive as validated
//     PDFs under prospects/<id>/tdm/.
//   - Jobs: internal/jobs persists every run with a scope lock (one non-terminal job per
//     overlapping county/kind/date window), classified retries with exponential backoff, and
//     an in-memory tracker serving live run state to the API.
//   - HTTP API: internal/api.Server exposes health, metrics, job submission, restart, clone,
//     report download, and prospect listing endpoints over chi. Serve mode adds cron-driven
//     recurring scrapes and syncs.
//   - Persistence & progress: pgx connects to Postgres with golang-migrate managing schema;
//     internal/progress batches run milestones to zap logs, Prometheus counters, per-county
//     database rows, and a plain-text report file per job.
//   - Configuration & plumbing: Viper populates config from a file and DEEDWATCH_* env vars;
//     zap provides structured logging throughout.
//
// Operational notes:
//   - Concurrency model: one Chrome process per scrape job with a tab per calendar page;
//     sync runs fan prospects over a fixed worker pool where each worker owns its own portal
//     session. Shutdown is coordinated via context cancellation from SIGINT/SIGTERM.
//   - Pacing: calendar page loads are rate-limited by browser.page_delay_seconds; portal
//     navigation is bounded by portal.nav_timeout_seconds.
//   - Observability: zap logs carry job IDs and case numbers at key transitions; Prometheus
//     counters track listings, verdicts, and document downloads in serve mode; report files
//     give a human-readable per-run summary.
//
// Quick checklist:
//   - Configure DEEDWATCH_DB_DSN, the counties map (county name to calendar base URL), and
//     portal.url for document syncs; run deedwatch migrate once against a fresh database.
//   - One-shot runs: deedwatch scrape --county duval --start-date 2026-09-01, then
//     deedwatch syncdocs --counties duval. deedwatch checkurls gates schedules on calendar
//     reachability.
//   - Long-running: deedwatch serve exposes the job API on server.port and honors
//     schedule.scrape_spec / schedule.sync_spec cron expressions.
package main
