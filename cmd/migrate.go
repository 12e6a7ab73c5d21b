package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overageworks/deedwatch/internal/config"
	"github.com/overageworks/deedwatch/internal/storage/postgres"
)

// newMigrateCmd creates the 'migrate' subcommand: apply pending schema
// migrations. It opens its own connection instead of the shared pool
// so it can run before the rest of the schema exists.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Apply pending database schema migrations",
		Annotations: map[string]string{standaloneAnnotation: "true"},

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return fmt.Errorf("db.dsn is not set")
			}
			if err := postgres.Migrate(cfg.DB.DSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
	return cmd
}
