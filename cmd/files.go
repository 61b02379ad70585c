// =============================================================================
// CAPCEE Ingestion - File Commands
// =============================================================================
//
// COMMAND USAGE:
//   capcee-ingest status <file-id>
//   capcee-ingest retry <file-id> [--user ID]
//   capcee-ingest pending [--limit N] [--department ID]
//   capcee-ingest cleanup [--days 30] [--dry-run]
//
// With the memory queue, retry and pending process the enqueued files in
// the foreground before exiting.
//
// =============================================================================

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	retryUser         int64
	pendingLimit      int
	pendingDepartment int64
	cleanupDays       int
	cleanupDryRun     bool
)

var statusCmd = &cobra.Command{
	Use:   "status <file-id>",
	Short: "Print the processing status of a file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.service.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <file-id>",
	Short: "Reset a file in ERROR or VALIDATED to PENDING and enqueue it",
	Long: `retry clears the counters, messages and timestamps of a file in ERROR or
VALIDATED, puts it back in PENDING and enqueues it. Records stored by the
previous attempt are kept and count as duplicates on the new run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.service.Retry(ctx, args[0], retryUser)
		if err != nil {
			return err
		}
		fmt.Printf("File %s reset to %s\n", f.ID, f.State)
		return a.drainLocal(ctx)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Enqueue files waiting in PENDING",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var dept *int64
		if cmd.Flags().Changed("department") {
			dept = &pendingDepartment
		}
		files, err := a.service.ProcessPending(ctx, dept, pendingLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Enqueued %d pending file(s)\n", len(files))
		for _, f := range files {
			fmt.Printf("  %s  %s\n", f.ID, f.OriginalFilename)
		}
		return a.drainLocal(ctx)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed files older than N days",
	Long: `cleanup deletes files in CONVERTED or VALIDATED uploaded more than --days
days ago, with their stored content, financial records and activity entries.
Files in ERROR are kept for inspection. --dry-run only lists them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cleanupDays < 1 {
			return fmt.Errorf("--days must be positive")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.service.Cleanup(cmd.Context(), time.Duration(cleanupDays)*24*time.Hour, cleanupDryRun)
		if err != nil {
			return err
		}
		verb := "Deleted"
		if cleanupDryRun {
			verb = "Would delete"
		}
		fmt.Printf("%s %d file(s)\n", verb, len(files))
		for _, f := range files {
			fmt.Printf("  %s  %-10s  %s  %s\n", f.ID, f.State, f.UploadedAt.Format(time.DateOnly), f.OriginalFilename)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, retryCmd, pendingCmd, cleanupCmd)

	retryCmd.Flags().Int64Var(&retryUser, "user", 0, "User id recorded in the activity log")

	pendingCmd.Flags().IntVar(&pendingLimit, "limit", 10, "Maximum number of files to enqueue")
	pendingCmd.Flags().Int64Var(&pendingDepartment, "department", 0, "Only files of this department id")

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Age in days of the files to delete")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "List the files without deleting them")
}
