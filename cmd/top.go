package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTopCmd() *cobra.Command {
	var (
		scanID int64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Prints the most viral items of a scan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scanID <= 0 {
				return errors.New("--scan is required")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := appInstance.TopItems(cmd.Context(), scanID, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ITEM\tSCORE\tSCORE/H\tREPLIES/H\tVIRALITY")
			for _, m := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\n", m.ItemID, intCell(m.Score), floatCell(m.ScoreVPH), floatCell(m.ReplyVPH), m.Virality)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&scanID, "scan", 0, "scan id to report")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of items")
	return cmd
}

func intCell(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func floatCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
