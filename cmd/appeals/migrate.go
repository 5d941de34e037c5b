package main

import (
	"errors"

	"github.com/spf13/cobra"

	"appeals/internal/judgment/store"
	"appeals/internal/platform/postgres"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := commonRun()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("APPEALS_DATABASE_URL is required")
			}
			db, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db, store.Migrations, "migrations", log)
			if err != nil {
				return err
			}
			log.Info("migrations complete", "applied", applied)
			return nil
		},
	}
}
