package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// newRunCmd creates the 'run' subcommand: one synchronous ingestion run.
func newRunCmd() *cobra.Command {
	var dateStr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one ingestion run and exit",
		Long: `Fetches the configured search terms for the window ending the day
before the execution date, validates the batch, and merges it into the
dataset. The process exits non-zero when the run fails; a failed validation
leaves the dataset untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}

			executionDate := time.Now().UTC()
			if dateStr != "" {
				executionDate, err = time.Parse(trends.DateLayout, dateStr)
				if err != nil {
					return fmt.Errorf("--date must be %s: %w", trends.DateLayout, err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildService(ctx, rt)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := svc.Execute(ctx, executionDate)
			if err != nil {
				if run.ID != "" {
					return fmt.Errorf("run %s failed: %w", run.ID, err)
				}
				return err
			}

			rt.log.Info("run succeeded",
				zap.String("run_id", run.ID),
				zap.String("window", run.Window.String()),
				zap.Int("records", run.Report.RecordCount),
				zap.Int("written", run.Report.Write.Written),
				zap.Int("replaced", run.Report.Write.Replaced),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "execution date (YYYY-MM-DD, default today)")
	return cmd
}
