package main

import (
	"github.com/spf13/cobra"

	"recruit-pipeline/infrastructure"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := infrastructure.OpenDatabase(cfg.Database, logger)
		if err != nil {
			return err
		}
		store := infrastructure.NewGormStore(db)
		defer store.Close()

		return infrastructure.Migrate(db, logger)
	},
}
