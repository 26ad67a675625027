package main

import (
	"time"

	"github.com/chaptermaker/chaptermaker/internal/retention"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete uploads, outputs and job records past their retention once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return err
		}
		defer done()

		if sweepMaxAge > 0 {
			cfg.Retention.MaxAge = sweepMaxAge
		}

		ctx, cancel := signalContext()
		defer cancel()

		_, s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		objects, err := openObjectStore(ctx, cfg)
		if err != nil {
			return err
		}

		result := retention.NewSweeper(objects, s.Job(), cfg.Retention.MaxAge).Sweep(ctx)
		for _, e := range result.Errors {
			zap.S().Warnw("failed to delete", "path", e.Path, "error", e.Error)
		}
		zap.S().Infow("sweep finished", "objects_removed", len(result.Removed), "jobs_deleted", result.JobsDeleted, "errors", len(result.Errors))
		return nil
	},
}

func init() {
	addSweepFlags(sweepCmd.Flags())
}

func addSweepFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&sweepMaxAge, "max-age", 0, "Override CHAPTERMAKER_RETENTION_MAX_AGE for this run")
}
