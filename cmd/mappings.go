// =============================================================================
// CAPCEE Ingestion - Mappings Commands
// =============================================================================
//
// COMMAND USAGE:
//   capcee-ingest mappings sync
//       Upsert the departments and column mappings of the department files
//       in mappings.dir into the database.
//
//   capcee-ingest mappings show --department CAPCEE --type OBRAS_2025
//       Print the active mappings the pipeline would use, from the
//       configured source.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/callrodry/capcee-proyecto/internal/config"
	"github.com/callrodry/capcee-proyecto/internal/database"
	"github.com/callrodry/capcee-proyecto/internal/repository"
	"github.com/callrodry/capcee-proyecto/internal/types"
)

var (
	showDepartment string
	showFileType   string
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage column mappings",
}

var mappingsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert the department mapping files into the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		depts, err := config.LoadDepartmentConfigs(cfg.Mappings.Dir)
		if err != nil {
			return err
		}
		if len(depts) == 0 {
			return fmt.Errorf("no department files found in %s", cfg.Mappings.Dir)
		}

		codes := make([]string, 0, len(depts))
		for code := range depts {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		var departments []types.Department
		var mappings []types.ColumnMapping
		for _, code := range codes {
			departments = append(departments, depts[code].Department())
			mappings = append(mappings, depts[code].ColumnMappings()...)
		}

		ctx := cmd.Context()
		pool, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := repository.NewStore(pool).SyncMappings(ctx, departments, mappings)
		if err != nil {
			return fmt.Errorf("failed to sync mappings: %w", err)
		}
		fmt.Printf("Synced %d department(s), %d mapping(s)\n", len(departments), n)
		return nil
	},
}

var mappingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active mappings of a department and file type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return showMappings(cmd.Context(), a, showDepartment, showFileType)
	},
}

func showMappings(ctx context.Context, a *app, dept, fileType string) error {
	list, err := a.registry.MappingsFor(ctx, dept, fileType)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("no active mappings for %s/%s", dept, fileType)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tTARGET\tTYPE\tREQUIRED")
	for _, m := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", m.SourceColumn, m.TargetField, m.DataType, m.Required)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
	mappingsCmd.AddCommand(mappingsSyncCmd, mappingsShowCmd)

	mappingsShowCmd.Flags().StringVar(&showDepartment, "department", "", "Department code")
	mappingsShowCmd.Flags().StringVar(&showFileType, "type", "", "File type, e.g. OBRAS_2025")
	_ = mappingsShowCmd.MarkFlagRequired("department")
	_ = mappingsShowCmd.MarkFlagRequired("type")
}
