package main

import (
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	dbembed "github.com/memohai/claimd/db"
	"github.com/memohai/claimd/internal/config"
	"github.com/memohai/claimd/internal/db"
	"github.com/memohai/claimd/internal/logger"
)

func migrateCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|version|force N>",
		Short: "Apply or roll back the PostgreSQL schema",
		Example: `  claimd migrate up
  claimd migrate force 1`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.Init(cfg.Log.Level, cfg.Log.Format)
			migrations, err := fs.Sub(dbembed.MigrationsFS, "migrations")
			if err != nil {
				return err
			}
			return db.RunMigrate(log, cfg.Postgres, migrations, args[0], args[1:])
		},
	}
}
