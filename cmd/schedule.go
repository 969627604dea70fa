package cmd

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScheduleCmd runs scans on schedule.spec until interrupted. A tick that
// fires while a scan is still running is skipped.
func newScheduleCmd() *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs scans on a cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger().Named("schedule")
			spec := appInstance.Config().Schedule.Spec
			ctx := cmd.Context()

			stopOps := serveOps(ctx, appInstance)
			defer stopOps()

			scan := func() {
				res, err := appInstance.RunScan(ctx)
				if err != nil {
					logger.Error("scheduled scan failed", zap.Error(err))
					return
				}
				logger.Info("scheduled scan complete", zap.Int64("scan_id", res.ScanID), zap.Int("saved", res.Saved))
			}

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			if _, err := c.AddFunc(spec, scan); err != nil {
				return fmt.Errorf("parse schedule %q: %w", spec, err)
			}
			if now {
				scan()
			}
			c.Start()
			logger.Info("scheduler started", zap.String("spec", spec))

			<-ctx.Done()
			<-c.Stop().Done()
			logger.Info("scheduler stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "run one scan immediately before waiting for the schedule")
	return cmd
}
