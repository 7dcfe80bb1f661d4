package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/postgres"
	"github.com/faisalazhar1701/destinycreditai-sub000/pkg/logger"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			return postgres.Migrate(cmd.Context(), pool)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			return postgres.MigrateDown(cmd.Context(), pool)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the status of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			return postgres.MigrationStatus(cmd.Context(), pool)
		},
	})
	return cmd
}

// openMigrator connects to postgres with goose logging through zerolog.
func openMigrator(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, pool, err := openPostgres(ctx)
	if err != nil {
		return nil, err
	}
	postgres.SetMigrationLogger(logger.NewPrintfLogger(initLogger(cfg), "migrations"))
	return pool, nil
}
