// Package cmd defines and implements the CLI commands for the community-crawler executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/api"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs exactly one scan.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one scan over the configured communities",
		Long: `Crawls every community in crawl.source with crawl.workers browser sessions,
writes all records through the single writer, and computes velocity metrics
for the new scan.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	stopOps := serveOps(cmd.Context(), appInstance)
	defer stopOps()

	res, err := appInstance.RunScan(cmd.Context())
	if err != nil {
		return fmt.Errorf("run scan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scan %d: saved %d items from %d communities in %.1fs\n",
		res.ScanID, res.Saved, res.Communities, res.ElapsedSeconds)
	return nil
}

// serveOps starts the operator HTTP server when metrics.addr is set. The
// returned func stops it.
func serveOps(ctx context.Context, appInstance App) func() {
	addr := appInstance.Config().Metrics.Addr
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := api.NewServer(appInstance, appInstance.Logger()).ListenAndServe(ctx, addr); err != nil {
			appInstance.Logger().Error("ops server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
