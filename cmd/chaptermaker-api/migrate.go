package main

import (
	"fmt"

	"github.com/chaptermaker/chaptermaker/internal/queue"
	"github.com/chaptermaker/chaptermaker/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return err
		}
		defer done()

		ctx, cancel := signalContext()
		defer cancel()

		db, s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		pool, err := queue.NewPool(ctx, cfg.Database.DSN(), 1)
		if err != nil {
			return fmt.Errorf("creating queue pool: %w", err)
		}
		defer pool.Close()

		if err := migrations.MigrateStore(ctx, db, cfg.Service.MigrationFolder, pool); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		zap.S().Info("db migrated")
		return nil
	},
}
