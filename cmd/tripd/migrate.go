package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/config"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/logging"
)

func newMigrateCmd(rf *rootFlags) *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Only the database settings are needed; auth config is not validated here.
			if err := config.LoadEnvFile(rf.envFile); err != nil {
				return err
			}
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("DATABASE_URL (or --database-url) is required")
			}

			level, format := rf.logLevel, rf.logFormat
			if level == "" {
				level = "info"
			}
			if format == "" {
				format = "console"
			}
			log, err := logging.New(level, format)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pool, err := postgres.NewPool(cmd.Context(), databaseURL, postgres.PoolOptions{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			applied, err := postgres.Migrate(cmd.Context(), pool)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				log.Info("schema up to date")
				return nil
			}
			log.Info("migrations applied", zap.Strings("versions", applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string (default $DATABASE_URL)")
	return cmd
}
