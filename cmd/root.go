// =============================================================================
// CAPCEE Ingestion - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (capcee-ingest)
//   ├── serve     HTTP API and workers in one process
//   ├── worker    workers only, consuming the shared queue
//   ├── process   run the pipeline synchronously for one file
//   ├── status    print the processing status of a file
//   ├── retry     reset an ERROR/VALIDATED file and enqueue it
//   ├── pending   enqueue files left in PENDING
//   ├── cleanup   delete old completed files
//   ├── events    follow completion events
//   ├── migrate   apply database migrations
//   ├── mappings  sync and inspect column mappings
//   └── version
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging regardless of the configured level.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "capcee-ingest",
	Short: "CAPCEE spreadsheet ingestion - validate, map and store department uploads",
	Long: `capcee-ingest ingests spreadsheets (xlsx, xls, csv) uploaded by CAPCEE
departments. Each file is matched to its department's column mappings,
structurally validated, converted row by row into financial records and
tracked through PENDING -> IN_PROGRESS -> CONVERTED | VALIDATED | ERROR.

Example Usage:
  capcee-ingest migrate                     # Create or upgrade the schema
  capcee-ingest mappings sync               # Load configs/*.yaml into the database
  capcee-ingest serve                       # Upload API plus processing workers
  capcee-ingest status <file-id>            # Inspect one file
  capcee-ingest retry <file-id>             # Reprocess a failed file`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"configs/config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
