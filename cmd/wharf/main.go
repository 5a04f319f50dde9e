package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coastline/wharf/internal/config"
)

var (
	cfgFile     string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	// cfg is the resolved configuration for this invocation. Populated
	// by PersistentPreRun for every command that needs one.
	cfg config.Core
)

// noConfigCommands run without resolving configuration.
var noConfigCommands = map[string]bool{
	"wharf":      true, // bare root invocation shows help
	"version":    true,
	"help":       true,
	"completion": true,
	"__complete": true,
}

var rootCmd = &cobra.Command{
	Use:   "wharf",
	Short: "wharf - batch ETL for delimited extract files",
	Long: `Ingest pipe-delimited extract files into a reporting warehouse.

wharf watches a landing directory (or pulls from an SFTP source),
cleans and de-identifies each file, and upserts the rows into SQLite,
MS SQL, PostgreSQL or MySQL. Every file and job is recorded in a local
metadata ledger so interrupted runs recover and processed files are
not loaded twice.

Configuration is resolved from wharf.yaml, WHARF_* environment
variables and flags; filename-to-table mappings live in tables.yaml
next to the config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("wharf version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle (rootCmd -> loadConfig -> bindFlags -> rootCmd).
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noConfigCommands[cmd.Name()] {
			return
		}
		c, err := loadConfig(cfgFile)
		if err != nil {
			FatalError("%v", err)
		}
		cfg = c
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./wharf.yaml, ~/.config/wharf/wharf.yaml, /etc/wharf/wharf.yaml)")
	rootCmd.PersistentFlags().String("input", "", "Landing directory for extract files (overrides directories.input)")
	rootCmd.PersistentFlags().String("database-dir", "", "Directory for the ledger, lock and log files (overrides directories.database)")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite warehouse path (overrides db.path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	// Same behavior as the version subcommand.
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
