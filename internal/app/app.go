// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/config"
	"github.com/overageworks/deedwatch/internal/jobs"
	"github.com/overageworks/deedwatch/internal/logging"
	"github.com/overageworks/deedwatch/internal/rules"
	"github.com/overageworks/deedwatch/internal/storage/local"
	"github.com/overageworks/deedwatch/internal/storage/postgres"
)

// App holds the shared, long-lived services for the deedwatch binary.
// It is initialized once at startup and handed to the commands that
// need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	clock  auction.Clock

	prospects auction.ProspectStore
	ruleStore auction.RuleStore
	docs      auction.DocumentStore
	jobStore  auction.JobStore
	errStore  auction.ErrorStore
	progress  *postgres.ProgressStore
	files     auction.FileStore

	ruleEngine *rules.Engine
	jobEngine  *jobs.Engine
	tracker    *jobs.Tracker
}

// New builds an App from the given config file path, connecting to the
// database and wiring every store. It fails fast when any critical
// service cannot come up.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger.Info("initializing services")

	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is not set")
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		clock:  auction.SystemClock{},
	}
	if err := a.buildStores(); err != nil {
		pool.Close()
		return nil, err
	}

	files, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open document archive: %w", err)
	}
	a.files = files

	a.ruleEngine = rules.NewEngine(a.ruleStore)
	a.jobEngine = jobs.NewEngine(a.jobStore, a.errStore, a.clock, logger)
	a.tracker = jobs.NewTracker(a.clock)

	return a, nil
}

func (a *App) buildStores() error {
	var err error
	if a.prospects, err = postgres.NewProspectStore(a.pool); err != nil {
		return fmt.Errorf("prospect store: %w", err)
	}
	if a.ruleStore, err = postgres.NewRuleStore(a.pool); err != nil {
		return fmt.Errorf("rule store: %w", err)
	}
	if a.docs, err = postgres.NewDocumentStore(a.pool); err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	if a.jobStore, err = postgres.NewJobStore(a.pool); err != nil {
		return fmt.Errorf("job store: %w", err)
	}
	if a.errStore, err = postgres.NewErrorStore(a.pool); err != nil {
		return fmt.Errorf("error store: %w", err)
	}
	if a.progress, err = postgres.NewProgressStore(a.pool); err != nil {
		return fmt.Errorf("progress store: %w", err)
	}
	return nil
}

// Close releases the database pool and flushes the logger.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the wall clock used for persisted timestamps.
func (a *App) Clock() auction.Clock { return a.clock }

// Prospects exposes the prospect store.
func (a *App) Prospects() auction.ProspectStore { return a.prospects }

// Documents exposes the document metadata store.
func (a *App) Documents() auction.DocumentStore { return a.docs }

// JobStore exposes the persisted job store.
func (a *App) JobStore() auction.JobStore { return a.jobStore }

// ProgressStore exposes the per-county progress repository.
func (a *App) ProgressStore() *postgres.ProgressStore { return a.progress }

// Files exposes the local document archive.
func (a *App) Files() auction.FileStore { return a.files }

// RuleEngine returns the qualification rule engine.
func (a *App) RuleEngine() *rules.Engine { return a.ruleEngine }

// JobEngine returns the job lifecycle engine.
func (a *App) JobEngine() *jobs.Engine { return a.jobEngine }

// Tracker returns the in-memory run tracker used by the serve API.
func (a *App) Tracker() *jobs.Tracker { return a.tracker }
