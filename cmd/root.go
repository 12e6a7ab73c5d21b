// Package cmd defines and implements the CLI commands for the deedwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/overageworks/deedwatch/internal/app"
	"github.com/overageworks/deedwatch/internal/auction"
	"github.com/overageworks/deedwatch/internal/config"
	"github.com/overageworks/deedwatch/internal/jobs"
	"github.com/overageworks/deedwatch/internal/rules"
	"github.com/overageworks/deedwatch/internal/storage/postgres"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// standaloneAnnotation marks subcommands that load config themselves
// and never touch the database, so root skips building the service
// container for them.
const standaloneAnnotation = "standalone"

// App defines the application interface that commands use. This allows
// injecting a mock app during tests.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Clock() auction.Clock
	Prospects() auction.ProspectStore
	Documents() auction.DocumentStore
	JobStore() auction.JobStore
	ProgressStore() *postgres.ProgressStore
	Files() auction.FileStore
	RuleEngine() *rules.Engine
	JobEngine() *jobs.Engine
	Tracker() *jobs.Tracker
}

// newApp is the application factory. It is a variable so tests can
// replace it with a mock factory.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	return app.New(ctx, cfgFile)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deedwatch",
		Short: "Surplus-prospect pipeline for county foreclosure and tax-deed auctions.",
		Long: `deedwatch harvests county auction calendars, qualifies the resulting
prospects through a tiered rule engine, and keeps a local archive of
each prospect's case documents in sync with the partner portal.`,

		// Runs after flag parsing but before the subcommand's RunE;
		// the place to build and inject the service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[standaloneAnnotation] == "true" {
				return nil
			}
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newSyncDocsCmd())
	cmd.AddCommand(newCheckURLsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the
// command context so long-running jobs can drain.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "deedwatch: %v\n", err)
		os.Exit(1)
	}
}
