package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	apiserver "github.com/chaptermaker/chaptermaker/internal/api_server"
	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/config"
	handlers "github.com/chaptermaker/chaptermaker/internal/handlers/v1alpha1"
	"github.com/chaptermaker/chaptermaker/internal/openai"
	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/pipeline/stages"
	"github.com/chaptermaker/chaptermaker/internal/publish"
	"github.com/chaptermaker/chaptermaker/internal/qa"
	"github.com/chaptermaker/chaptermaker/internal/queue"
	"github.com/chaptermaker/chaptermaker/internal/retention"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/internal/slides"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/transcribe"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	"github.com/chaptermaker/chaptermaker/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chaptermaker api and its workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return err
		}
		defer done()

		zap.S().Info("starting chaptermaker")
		defer zap.S().Info("chaptermaker stopped")

		if cfg.Database.Type != "pgsql" {
			return errors.New("the job queue requires DB_TYPE=pgsql")
		}

		ctx, cancel := signalContext()
		defer cancel()

		db, s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		pool, err := queue.NewPool(ctx, cfg.Database.DSN(), cfg.Queue.MaxWorkers)
		if err != nil {
			return fmt.Errorf("creating queue pool: %w", err)
		}
		defer pool.Close()

		if err := migrations.MigrateStore(ctx, db, cfg.Service.MigrationFolder, pool); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		objects, err := openObjectStore(ctx, cfg)
		if err != nil {
			return err
		}

		orchestrator, err := newOrchestrator(cfg, s, objects)
		if err != nil {
			return err
		}

		tracker := stages.NewObjectTracker(objects)
		client, err := queue.NewClient(ctx, pool, orchestrator, queue.Config{
			MaxWorkers:  cfg.Queue.MaxWorkers,
			MaxAttempts: cfg.Queue.MaxAttempts,
			JobTimeout:  cfg.Queue.JobTimeout,
			Jobs:        s.Job(),
			Tracker:     tracker,
		})
		if err != nil {
			return fmt.Errorf("creating queue client: %w", err)
		}
		reconciler := queue.NewReconciler(s.Job(), client,
			queue.WithReconcileInterval(cfg.Queue.ReconcileInterval),
			queue.WithReconcileTracker(tracker),
		)

		jobSrv := service.NewJobService(s, objects, client,
			service.WithTracker(tracker),
			service.WithBatchMaxSize(cfg.Service.BatchMaxSize),
			service.WithDownloadExpiry(cfg.Upload.DownloadExpiry),
		)
		uploadSrv := service.NewUploadService(upload.NewBroker(objects, cfg.Upload.TicketExpiry))
		handler := handlers.NewServiceHandler(jobSrv, uploadSrv)

		apiListener, err := newListener(cfg.Service.Address)
		if err != nil {
			return fmt.Errorf("creating listener: %w", err)
		}
		metricsListener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			return fmt.Errorf("creating metrics listener: %w", err)
		}

		sweeper := retention.NewSweeper(objects, s.Job(), cfg.Retention.MaxAge, retention.WithInterval(cfg.Retention.Interval))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return apiserver.New(cfg, handler, apiListener).Run(gctx)
		})
		g.Go(func() error {
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, metricsListener).Run(gctx)
		})
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
		g.Go(func() error {
			return reconciler.Run(gctx)
		})
		g.Go(func() error {
			if err := client.Start(gctx); err != nil {
				return fmt.Errorf("starting queue: %w", err)
			}
			<-gctx.Done()
			// running jobs finish their current stage or are rescued on the next start
			stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Queue.JobTimeout)
			defer stopCancel()
			return client.Stop(stopCtx)
		})

		return g.Wait()
	},
}

// newOrchestrator wires the stage collaborators from the configuration.
func newOrchestrator(cfg *config.Config, s store.Store, objects storage.ObjectStore) (*pipeline.Orchestrator, error) {
	ai, err := openai.NewClient(cfg.OpenAI.APIKey,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithTranscriptionModel(cfg.OpenAI.TranscriptionModel),
		openai.WithChatModel(cfg.OpenAI.ChapterModel),
		openai.WithTimeout(cfg.OpenAI.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	var counter chapters.TokenCounter
	if tc, err := openai.NewTokenCounter(); err == nil {
		counter = tc
	} else {
		zap.S().Warnw("falling back to estimated token counts", "error", err)
		counter = openai.Estimator{}
	}

	deps := stages.Deps{
		Objects: objects,
		Transcriber: transcribe.NewTranscriber(ai,
			transcribe.WithFFmpeg(cfg.Tools.FFmpeg),
			transcribe.WithFFprobe(cfg.Tools.FFprobe),
		),
		Generator: chapters.NewGenerator(ai,
			chapters.WithTokenCounter(counter),
			chapters.WithTokenBudget(cfg.Pipeline.TranscriptTokenBudget),
		),
		Extractor: slides.NewExtractor(
			slides.WithSoffice(cfg.Tools.Soffice),
			slides.WithPdftoppm(cfg.Tools.Pdftoppm),
			slides.WithResolution(cfg.Pipeline.SlideResolution),
		),
		Detector:  qa.NewKeywordDetector(cfg.Pipeline.QAKeywords...),
		Publisher: publish.NewPublisher(objects),
		MaxCue:    cfg.Pipeline.MaxCueDuration,
	}

	return pipeline.NewOrchestrator(s.Job(), stages.New(deps),
		pipeline.WithTracker(stages.NewObjectTracker(objects)),
		pipeline.WithWorkRoot(cfg.Service.WorkDir),
	)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
