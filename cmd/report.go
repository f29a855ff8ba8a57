package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"github.com/nmthangdn2000/web-automation-tools/internal/store"
)

func newReportCmd() *cobra.Command {
	var (
		runID    string
		workflow string
		limit    int
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show persisted run reports",
		Long:  `Reads run history from the database configured under postgres.url. With --run-id it prints that run's report; otherwise it lists the most recent runs, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Get the configuration initialized by the root command
			cfg := config.Get()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("no run history: postgres.url is not configured (hint: set WEBAUTO_POSTGRES_URL)")
			}

			runStore, err := store.Connect(ctx, cfg.Postgres.URL, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize run store: %w", err)
			}
			defer runStore.Close()

			if runID != "" {
				report, err := runStore.GetRun(ctx, runID)
				if err != nil {
					logger.Error("Failed to load run", zap.Error(err), zap.String("run_id", runID))
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			}

			reports, err := runStore.ListRuns(ctx, workflow, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reports)
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "print a single run")
	reportCmd.Flags().StringVar(&workflow, "workflow", "", "only list runs of this recipe or workflow")
	reportCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return reportCmd
}
