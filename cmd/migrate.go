package cmd

import (
	"github.com/spf13/cobra"

	"github.com/callrodry/capcee-proyecto/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Migrate(cfg.Database, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
