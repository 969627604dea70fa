package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCmd() *cobra.Command {
	var scanID int64
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Recomputes velocity metrics for an existing scan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scanID <= 0 {
				return errors.New("--scan is required")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.RecomputeMetrics(cmd.Context(), scanID)
			if err != nil {
				return fmt.Errorf("recompute metrics: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scan %d: %d item rows, %d reply rows\n", scanID, res.Items, res.Replies)
			return nil
		},
	}
	cmd.Flags().Int64Var(&scanID, "scan", 0, "scan id to recompute")
	return cmd
}
