// =============================================================================
// CAPCEE Ingestion - Process Command
// =============================================================================
//
// This file defines the 'process' command, which runs the ingestion pipeline
// synchronously for one file that is waiting in PENDING.
//
// COMMAND USAGE:
//   capcee-ingest process <file-id>
//
// PROCESSING PIPELINE:
//   1. Claim the file (PENDING -> IN_PROGRESS)
//   2. Detect the file type and check the header against the mappings
//   3. Read the rows in chunks; per row, in its own transaction:
//      a. Map cells to target fields and convert values
//      b. Validate the row against the mapping rules
//      c. Skip rows whose folio already exists in the department
//      d. Insert the financial record
//   4. Write the terminal state, counters and messages
//   5. Emit the completion event
//
// =============================================================================

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/callrodry/capcee-proyecto/internal/converter"
)

var processCmd = &cobra.Command{
	Use:   "process <file-id>",
	Short: "Run the pipeline for one PENDING file and wait for the result",
	Long: `The process command runs the ingestion pipeline in the foreground for a
single file. The file must be in PENDING; use 'retry' first for a file in
ERROR or VALIDATED.

A file that fails structure validation, or that cannot be read, ends in
ERROR. A file whose rows were all read ends in CONVERTED when no row failed
and in VALIDATED otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.converter.Process(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(res)
		if !res.Success() {
			return fmt.Errorf("file %s ended in %s", res.FileID, res.State)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}

// =============================================================================
// SUMMARY REPORT
// =============================================================================

// printResult prints the outcome of one run.
func printResult(res *converter.Result) {
	fmt.Println("=========================================")
	fmt.Printf("File:        %s\n", res.FileID)
	if res.FileType != "" {
		fmt.Printf("File type:   %s\n", res.FileType)
	}
	fmt.Printf("State:       %s\n", res.State)
	fmt.Printf("Rows:        %d total, %d succeeded, %d failed, %d duplicated\n",
		res.Stats.Total, res.Stats.Succeeded, res.Stats.Failed, res.Stats.Duplicated)
	fmt.Printf("Time:        %v\n", res.Duration.Round(time.Millisecond))
	if len(res.Errors) > 0 {
		fmt.Println("Errors:")
		for _, msg := range res.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}
	fmt.Println("=========================================")
}
