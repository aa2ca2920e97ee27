package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/config"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := loadConfig()
		if err != nil {
			return err
		}
		defer flush()

		if cfg.Database.Type != config.DBTypeSqlite && cfg.Database.Type != config.DBTypePostgres {
			return fmt.Errorf("database type %q has no migrations", cfg.Database.Type)
		}

		zap.S().Infow("Migrating data store", "type", cfg.Database.Type)
		s, err := newStore(cfg, catalog.Default(), true)
		if err != nil {
			return err
		}
		defer s.Close()

		zap.S().Info("Db migrated")
		return nil
	},
}
