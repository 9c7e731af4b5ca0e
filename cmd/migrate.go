package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yakoovad/scrumboard/internal/config"
	"github.com/yakoovad/scrumboard/internal/db"
	"github.com/yakoovad/scrumboard/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StorageDriver != config.StorageDriverPostgres {
				return errors.Errorf("migrations need the %s storage driver", config.StorageDriverPostgres)
			}

			l, err := logger.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer l.Sync()

			if err = db.Migrate(cfg.Postgres.DSN); err != nil {
				return err
			}

			l.Info("migrations applied")
			return nil
		},
	}
}
