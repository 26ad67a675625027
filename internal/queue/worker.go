package queue

import (
	"context"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/riverqueue/river"
)

const DefaultJobTimeout = 60 * time.Minute

// Runner runs one attempt of a job. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, attempt pipeline.Attempt) error
}

type ProcessWorker struct {
	river.WorkerDefaults[ProcessArgs]
	runner  Runner
	timeout time.Duration
	logger  *log.StructuredLogger
}

func NewProcessWorker(runner Runner, timeout time.Duration) *ProcessWorker {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &ProcessWorker{runner: runner, timeout: timeout, logger: log.NewDebugLogger("process_worker")}
}

func (w *ProcessWorker) Timeout(job *river.Job[ProcessArgs]) time.Duration {
	return w.timeout
}

// Work runs the pipeline. A permanent failure has already been recorded on the job, so
// it cancels the queue job instead of spending retries on it.
func (w *ProcessWorker) Work(ctx context.Context, job *river.Job[ProcessArgs]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := pipeline.Attempt{
		JobID:       job.Args.JobID,
		Number:      job.Attempt,
		MaxAttempts: job.MaxAttempts,
	}
	err := w.runner.Run(ctx, attempt)
	if err == nil {
		return nil
	}

	tracer := w.logger.WithContext(ctx).Operation("work").
		WithString("job_id", attempt.JobID).
		WithInt("attempt", attempt.Number).
		WithInt("max_attempts", attempt.MaxAttempts).
		Build()
	if pipeline.IsPermanent(err) {
		tracer.Error(err).WithBool("retry", false).Log()
		return river.JobCancel(err)
	}
	tracer.Warn(err).WithBool("retry", true).Log()
	return err
}
