package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coastline/wharf/internal/metadata"
	"github.com/coastline/wharf/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active jobs and recently processed files",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openLedger(ctx)
		defer store.Close()

		jobs, err := store.ListJobs(ctx, 50)
		if err != nil {
			FatalError("failed to list jobs: %v", err)
		}
		var active []*types.JobProgress
		for _, j := range jobs {
			if !j.Status.IsTerminal() {
				active = append(active, j)
			}
		}

		files, err := store.ProcessedFiles(ctx, 10)
		if err != nil {
			FatalError("failed to list files: %v", err)
		}
		drifts, err := store.UnresolvedDrift(ctx)
		if err != nil {
			FatalError("failed to read schema drift: %v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"active_jobs":      active,
				"recent_files":     files,
				"unresolved_drift": len(drifts),
			})
			return
		}

		if len(active) == 0 {
			fmt.Println("no active jobs")
		} else {
			for _, j := range active {
				fmt.Printf("job %s %s (%s by %s): %d/%d files, %.0f%%\n",
					j.JobID, j.Status, j.Trigger, j.TriggeredBy,
					j.CompletedFiles+j.FailedFiles+j.SkippedFiles, j.TotalFiles,
					j.CompletionPercent())
			}
		}

		if len(files) > 0 {
			fmt.Println("\nrecent files:")
			printFileTable(files)
		}
		if len(drifts) > 0 {
			fmt.Printf("\n%d unresolved schema drift record(s); run 'wharf schema --check'\n", len(drifts))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printFileTable(files []metadata.FileRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTABLE\tSTATUS\tROWS\tINSERTED\tUPDATED\tCOMPLETED")
	for _, f := range files {
		completed := ""
		if f.CompletedAt != nil {
			completed = f.CompletedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			f.FileName, f.TableName, f.Status,
			f.RecordsProcessed, f.RecordsInserted, f.RecordsUpdated, completed)
	}
	_ = w.Flush()
}
