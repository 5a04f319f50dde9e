package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coastline/wharf/internal/core"
	"github.com/coastline/wharf/internal/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Discover and process landing-directory files once",
	Long: `Run one ingestion job over the landing directory and exit.

Files already processed (same name and content hash) are skipped unless
--force is given. Ctrl-C cancels the job; files already loaded stay
loaded.

Examples:
  wharf ingest                          # process everything new
  wharf ingest --force                  # reprocess known files too
  wharf ingest --latest-only            # newest file per table only
  wharf ingest --workers 8              # raise table parallelism
  wharf ingest --files people_20240115.txt,cases_20240115.txt
`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		latestOnly, _ := cmd.Flags().GetBool("latest-only")
		workers, _ := cmd.Flags().GetInt("workers")
		files, _ := cmd.Flags().GetStringSlice("files")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, log, closer := newService(ctx)
		svc.Start()

		jobID, err := svc.Orchestrator().StartJob(types.JobOptions{
			ForceReprocess: force,
			LatestOnly:     latestOnly,
			MaxWorkers:     workers,
			SelectedFiles:  files,
			Username:       os.Getenv("USER"),
			Trigger:        types.TriggerManual,
		})
		if err != nil {
			stopService(svc, log, closer)
			FatalError("failed to start job: %v", err)
		}
		if !quietFlag && !jsonOutput {
			fmt.Printf("job %s started\n", jobID)
		}

		final := waitForJob(ctx, svc, jobID)
		stopService(svc, log, closer)

		if jsonOutput {
			outputJSON(final)
		} else if !quietFlag {
			printJobSummary(final)
		}
		if final.Status != types.JobCompleted {
			os.Exit(1)
		}
	},
}

func init() {
	ingestCmd.Flags().Bool("force", false, "Reprocess files already recorded in the ledger")
	ingestCmd.Flags().Bool("latest-only", false, "Process only the newest file per table")
	ingestCmd.Flags().Int("workers", 0, "Max concurrent files (default: etl.max_workers)")
	ingestCmd.Flags().StringSlice("files", nil, "Process only these file names")
	rootCmd.AddCommand(ingestCmd)
}

// waitForJob polls until the job reaches a terminal status, printing
// per-file results as they land. The first Ctrl-C cancels the job and
// the wait continues until the cancellation settles.
func waitForJob(ctx context.Context, svc *core.Core, jobID string) *types.JobProgress {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	printed := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			svc.Orchestrator().CancelJob(jobID)
			if !quietFlag && !jsonOutput {
				fmt.Println("cancelling job...")
			}
			ctx = context.Background()
		case <-ticker.C:
		}

		p, err := svc.Orchestrator().GetJob(context.Background(), jobID)
		if err != nil {
			FatalError("failed to read job %s: %v", jobID, err)
		}
		if p == nil {
			FatalError("job %s disappeared from the ledger", jobID)
		}
		if !quietFlag && !jsonOutput {
			printNewTerminalTasks(p, printed)
		}
		if p.Status.IsTerminal() {
			return p
		}
	}
}

func printNewTerminalTasks(p *types.JobProgress, printed map[string]bool) {
	for _, f := range p.Files {
		if !f.Status.IsTerminal() || printed[f.FileName] {
			continue
		}
		printed[f.FileName] = true
		switch f.Status {
		case types.TaskCompleted:
			fmt.Printf("  %s -> %s: %d inserted, %d updated (%d rows)\n",
				f.FileName, f.Table, f.Inserted, f.Updated, f.Processed)
		case types.TaskSkipped:
			fmt.Printf("  %s: skipped (%s)\n", f.FileName, f.SkipReason)
		case types.TaskFailed:
			fmt.Printf("  %s: FAILED: %s\n", f.FileName, f.Error)
		}
	}
}

func printJobSummary(p *types.JobProgress) {
	fmt.Printf("job %s %s: %d/%d files, %d failed, %d skipped\n",
		p.JobID, p.Status, p.CompletedFiles, p.TotalFiles, p.FailedFiles, p.SkippedFiles)
	fmt.Printf("records: %d processed, %d inserted, %d updated\n",
		p.TotalRecordsProcessed, p.TotalRecordsInserted, p.TotalRecordsUpdated)
	for _, e := range p.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}
