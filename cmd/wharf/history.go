package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent jobs from the ledger",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		store := openLedger(ctx)
		defer store.Close()

		jobs, err := store.ListJobs(ctx, limit)
		if err != nil {
			FatalError("failed to list jobs: %v", err)
		}

		if jsonOutput {
			outputJSON(jobs)
			return
		}
		if len(jobs) == 0 {
			fmt.Println("no jobs recorded")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tSTATUS\tTRIGGER\tFILES\tFAILED\tSKIPPED\tINSERTED\tUPDATED\tSTARTED\tDURATION")
		for _, j := range jobs {
			duration := ""
			if j.EndedAt != nil {
				duration = j.EndedAt.Sub(j.StartedAt).Round(10 * time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
				j.JobID, j.Status, j.Trigger,
				j.CompletedFiles, j.TotalFiles, j.FailedFiles, j.SkippedFiles,
				j.TotalRecordsInserted, j.TotalRecordsUpdated,
				j.StartedAt.Local().Format(time.DateTime), duration)
		}
		_ = w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Max jobs to list")
	rootCmd.AddCommand(historyCmd)
}
