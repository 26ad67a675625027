package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrateStore applies the goose migrations and then the river queue schema. An empty
// migrationFolder selects the migrations compiled into the binary.
func MigrateStore(ctx context.Context, db *gorm.DB, migrationFolder string, pgxPool *pgxpool.Pool) error {
	goose.SetLogger(&logger{})

	fsys, err := migrationsFS(migrationFolder)
	if err != nil {
		return err
	}
	goose.SetBaseFS(fsys)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return err
	}

	if err := migrateRiver(ctx, pgxPool); err != nil {
		return fmt.Errorf("river migrations: %w", err)
	}

	return nil
}

func migrationsFS(folder string) (fs.FS, error) {
	if folder == "" {
		return fs.Sub(embedded, "sql")
	}

	fi, err := os.Stat(folder)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsDir() {
		return nil, fmt.Errorf("failed to open migration folder: %s is not a folder", folder)
	}
	return os.DirFS(folder), nil
}

func migrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return err
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return err
	}
	for _, v := range res.Versions {
		zap.S().Named("migrations").Infow("applied river migration", "version", v.Version)
	}
	return nil
}

// logger adapts goose output to zap.
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("goose").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("goose").Fatalf(format, v...) }
