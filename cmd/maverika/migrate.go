package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/maverika/maverika/internal/config"
	"github.com/maverika/maverika/internal/infrastructure/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			if cfg.StorageBackend != config.BackendPostgres {
				return errors.New("migrate requires MAVERIKA_STORAGE_BACKEND=postgres")
			}
			pool, err := postgres.NewPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := migrate(cmd.Context(), pool, cfg); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
			return nil
		},
	}
}
