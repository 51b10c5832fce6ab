package main

import (
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Example: `  ledgerctl migrate
  ledgerctl migrate --down
  ledgerctl migrate --path file:///srv/ledger/migrations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		down, _ := cmd.Flags().GetBool("down")

		version, err := database.Migrate(cfg.DatabaseURL, path, down)
		if err != nil {
			return err
		}
		log := logger.WithComponent("migrate")
		log.Info().Uint("version", version).Bool("down", down).Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("path", "file://migrations", "migration source URL")
	migrateCmd.Flags().Bool("down", false, "roll back the most recent migration")
}
