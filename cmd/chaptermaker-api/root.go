package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaptermaker/chaptermaker/internal/config"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:          "chaptermaker-api",
	Short:        "Turn recorded presentations into chapters, slides and subtitles",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override CHAPTERMAKER_LOG_LEVEL")
}

// setup loads the configuration and installs the global logger. The returned function
// flushes and restores the previous logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("reading configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Service.LogLevel = logLevel
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
}

func openStore(cfg *config.Config) (*gorm.DB, store.Store, error) {
	zap.S().Info("initializing data store")
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing data store: %w", err)
	}
	return db, store.NewStore(db), nil
}

func openObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	zap.S().Infow("connecting to object storage", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	objects, err := storage.NewMinioStore(ctx,
		storage.WithEndpoint(cfg.S3.Endpoint),
		storage.WithBucket(cfg.S3.Bucket),
		storage.WithAccessKey(cfg.S3.AccessKey),
		storage.WithSecretKey(cfg.S3.SecretKey),
		storage.WithRegion(cfg.S3.Region),
		storage.WithSSL(cfg.S3.UseSSL),
		storage.WithCreateBucket(),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to object storage: %w", err)
	}
	return objects, nil
}
