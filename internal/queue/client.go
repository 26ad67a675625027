package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

type Config struct {
	MaxWorkers  int
	MaxAttempts int
	JobTimeout  time.Duration
	// Jobs, when set, lets the queue fail job records for runs it gives up on.
	Jobs    store.Job
	Tracker pipeline.Tracker
}

type Client struct {
	*river.Client[pgx.Tx]
	maxAttempts int
}

// NewClient registers the process worker. Pass a nil runner for an insert-only client.
func NewClient(ctx context.Context, pool *pgxpool.Pool, runner Runner, cfg Config) (*Client, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	riverCfg := &river.Config{}
	if runner != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, NewProcessWorker(runner, cfg.JobTimeout))
		riverCfg.Workers = workers
		riverCfg.Queues = map[string]river.QueueConfig{
			DefaultQueue: {MaxWorkers: cfg.MaxWorkers},
		}
		if cfg.Jobs != nil {
			riverCfg.ErrorHandler = NewFailureHandler(cfg.Jobs, cfg.Tracker)
		}
		riverCfg.FetchCooldown = 100 * time.Millisecond
		riverCfg.FetchPollInterval = time.Second
		// Job rows have their own retention; queue rows only need to outlive a debugging session.
		riverCfg.CancelledJobRetentionPeriod = 24 * time.Hour
		riverCfg.CompletedJobRetentionPeriod = 24 * time.Hour
		riverCfg.DiscardedJobRetentionPeriod = 7 * 24 * time.Hour
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, err
	}

	return &Client{Client: riverClient, maxAttempts: cfg.MaxAttempts}, nil
}

func (c *Client) insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: c.maxAttempts,
	}
}

// Enqueue schedules a pipeline run and returns the queue job id.
func (c *Client) Enqueue(ctx context.Context, jobID string) (int64, error) {
	result, err := c.Insert(ctx, ProcessArgs{JobID: jobID}, c.insertOpts())
	if err != nil {
		return 0, err
	}
	return result.Job.ID, nil
}

// EnqueueMany schedules several runs in a single transaction. Ids are returned in the
// order of jobIDs.
func (c *Client) EnqueueMany(ctx context.Context, jobIDs []string) ([]int64, error) {
	params := make([]river.InsertManyParams, 0, len(jobIDs))
	for _, id := range jobIDs {
		params = append(params, river.InsertManyParams{Args: ProcessArgs{JobID: id}, InsertOpts: c.insertOpts()})
	}
	results, err := c.InsertMany(ctx, params)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Job.ID)
	}
	return ids, nil
}

// Cancel withdraws a queued run. A run that already finished is left alone.
func (c *Client) Cancel(ctx context.Context, queueJobID int64) error {
	_, err := c.JobCancel(ctx, queueJobID)
	if err != nil && !errors.Is(err, river.ErrNotFound) {
		return fmt.Errorf("cancelling queue job %d: %w", queueJobID, err)
	}
	return nil
}
