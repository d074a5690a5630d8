package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptend/dispatch/internal/store"
	"github.com/uptend/dispatch/pkg/migrations"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer teardown()

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		// versioned migrations for postgres, the models are enough for sqlite
		if cfg.Database.Type != "pgsql" {
			if err := s.InitialMigration(); err != nil {
				return fmt.Errorf("running initial migration: %w", err)
			}
			zap.S().Info("Db migrated from the models")
			return nil
		}

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		version, err := migrations.Version(db)
		if err != nil {
			return err
		}
		zap.S().Infow("Db migrated", "version", version)
		return nil
	},
}
