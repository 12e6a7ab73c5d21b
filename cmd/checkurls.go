package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overageworks/deedwatch/internal/config"
	"github.com/overageworks/deedwatch/internal/logging"
	"github.com/overageworks/deedwatch/internal/urlcheck"
)

// newCheckURLsCmd creates the 'checkurls' subcommand: probe every
// configured county calendar base for reachability. It needs no
// database, so it loads config on its own.
func newCheckURLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkurls",
		Short: "Probe configured county calendar bases for reachability",
		Long: `Sends a plain HTTP GET to each configured county calendar base and
reports which hosts answer. Exits non-zero when any county is
unreachable so the check can gate scheduled scrapes.`,
		Annotations: map[string]string{standaloneAnnotation: "true"},

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if len(cfg.Counties) == 0 {
				return fmt.Errorf("no counties configured")
			}

			checker := urlcheck.NewChecker(urlcheck.Config{
				UserAgent: cfg.Browser.UserAgent,
			}, logger)

			results, err := checker.CheckAll(cmd.Context(), cfg.Counties)
			if err != nil {
				return err
			}

			var failed int
			for _, res := range results {
				if !res.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d county bases unreachable", failed, len(results))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "all %d county bases reachable\n", len(results))
			return nil
		},
	}
	return cmd
}
