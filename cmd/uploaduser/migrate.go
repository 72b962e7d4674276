package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/uploaduser/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the directory tables and reserved accounts",
		Long: `Apply the embedded schema to DATABASE_URL. The schema only creates
what is missing, so running it again is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}

			pool, err := store.OpenPool(cmd.Context(), cfg.Database.URL, store.PoolOptions{MaxConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.NewPostgres(pool).Migrate(cmd.Context()); err != nil {
				return err
			}
			slog.Info("schema applied")
			return nil
		},
	}
}
