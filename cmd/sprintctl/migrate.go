package main

import (
	"github.com/spf13/cobra"

	"sprintmail/pkg/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger()
			defer log.Sync()
			return db.Migrate(cfg.DB, log)
		},
	}
}
