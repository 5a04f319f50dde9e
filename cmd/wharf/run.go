package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion service until interrupted",
	Long: `Run wharf as a long-lived service.

The service watches the landing directory when etl.auto_ingest is set
and pulls from the SFTP source on every sftp.poll_interval. Files are
processed as they arrive; interrupted work is recovered on the next
start. Stops cleanly on SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, log, closer := newService(ctx)
		svc.Start()

		if !cfg.ETL.AutoIngest && (!cfg.SFTP.Enabled || cfg.SFTP.PollInterval <= 0) {
			WarnError("neither etl.auto_ingest nor sftp.poll_interval is configured; the service will idle")
		}
		log.Info("service running", "pid", os.Getpid())
		if !quietFlag && !jsonOutput {
			fmt.Println("wharf service running, press Ctrl-C to stop")
		}

		<-ctx.Done()
		stop()

		if !quietFlag && !jsonOutput {
			fmt.Println("shutting down...")
		}
		stopService(svc, log, closer)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
