package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainScope/internal/config"
	"chainScope/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		RunE:  runMigrate,
	}
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Int("rollback", 0, "roll back this many migrations instead of applying")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.RequirePostgres(); err != nil {
		return err
	}

	steps, _ := cmd.Flags().GetInt("rollback")
	if steps > 0 {
		if err := postgres.Rollback(cfg.Postgres.DSN, steps); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	} else if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, err := postgres.MigrationVersion(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	logger.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
