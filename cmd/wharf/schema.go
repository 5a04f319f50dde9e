package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coastline/wharf/internal/dialect"
	"github.com/coastline/wharf/internal/schema"
	"github.com/coastline/wharf/internal/types"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print warehouse DDL or check recorded schema drift",
	Long: `Print the canonical warehouse schema rendered for the configured
dialect, or with --check report unresolved schema drift from the ledger
along with the recorded remediation DDL.`,
	Run: func(cmd *cobra.Command, args []string) {
		check, _ := cmd.Flags().GetBool("check")
		table, _ := cmd.Flags().GetString("table")

		if check {
			runSchemaCheck()
			return
		}

		adapter, err := dialect.New(cfg.DB)
		if err != nil {
			FatalError("%v", err)
		}
		catalog := schema.Default()

		var statements []string
		if table != "" {
			ddl, err := catalog.CreateTableDDL(table)
			if err != nil {
				FatalError("%v", err)
			}
			statements = []string{ddl}
		} else {
			statements, err = catalog.AllDDL()
			if err != nil {
				FatalError("%v", err)
			}
		}
		for i := range statements {
			statements[i] = adapter.Normalize(statements[i])
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"dialect":    adapter.Name(),
				"statements": statements,
			})
			return
		}
		for _, stmt := range statements {
			fmt.Println(strings.TrimRight(stmt, "\n") + ";")
			fmt.Println()
		}
	},
}

func init() {
	schemaCmd.Flags().Bool("check", false, "Report unresolved schema drift instead of printing DDL")
	schemaCmd.Flags().String("table", "", "Print DDL for one table only")
	rootCmd.AddCommand(schemaCmd)
}

// runSchemaCheck lists unresolved drift. Exit code 1 when any critical
// drift is outstanding so the check can gate deployments.
func runSchemaCheck() {
	ctx := context.Background()
	store := openLedger(ctx)
	defer store.Close()

	drifts, err := store.UnresolvedDrift(ctx)
	if err != nil {
		FatalError("failed to read schema drift: %v", err)
	}

	if jsonOutput {
		outputJSON(drifts)
	} else if len(drifts) == 0 {
		fmt.Println("no unresolved schema drift")
	} else {
		for _, d := range drifts {
			fmt.Printf("[%s] %s %s (file %s): %s\n", d.Severity, d.Kind, d.Table, d.File, d.Details)
			if d.SuggestedSQL != "" {
				fmt.Printf("    %s\n", d.SuggestedSQL)
			}
		}
	}

	for _, d := range drifts {
		if d.Severity == types.SeverityCritical {
			os.Exit(1)
		}
	}
}
