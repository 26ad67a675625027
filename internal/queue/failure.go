package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/chaptermaker/chaptermaker/pkg/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// FailureHandler fails the job record when the queue gives up on a run that never got
// to record its own outcome: a worker panic, a timeout before the pipeline started, or
// any other error on the last attempt.
type FailureHandler struct {
	jobs    store.Job
	tracker pipeline.Tracker
	logger  *log.StructuredLogger
}

var _ river.ErrorHandler = (*FailureHandler)(nil)

func NewFailureHandler(jobs store.Job, tracker pipeline.Tracker) *FailureHandler {
	return &FailureHandler{jobs: jobs, tracker: tracker, logger: log.NewInfoLogger("queue_failure_handler")}
}

func (h *FailureHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	var cancelErr *rivertype.JobCancelError
	if errors.As(err, &cancelErr) || job.Attempt < job.MaxAttempts {
		return nil
	}
	reason := pipeline.Reason(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timed out"
	case errors.Is(err, context.Canceled):
		reason = "interrupted"
	}
	h.failRow(ctx, job, reason)
	return nil
}

func (h *FailureHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.logger.WithContext(ctx).Operation("worker_panic").
		WithInt("queue_job_id", int(job.ID)).
		WithString("panic", fmt.Sprintf("%v", panicVal)).
		Build().Step("stack").WithString("trace", trace).Log()
	if job.Attempt < job.MaxAttempts {
		return nil
	}
	h.failRow(ctx, job, "worker panicked")
	return nil
}

func (h *FailureHandler) failRow(ctx context.Context, job *rivertype.JobRow, reason string) {
	if job.Kind != JobKind {
		return
	}
	var args ProcessArgs
	if err := json.Unmarshal(job.EncodedArgs, &args); err != nil || args.JobID == "" {
		h.logger.WithContext(ctx).Operation("fail_job").WithInt("queue_job_id", int(job.ID)).
			Build().Warn(fmt.Errorf("unreadable job args %q", job.EncodedArgs)).Log()
		return
	}
	msg := fmt.Sprintf("processing failed after %d attempts: %s", job.Attempt, reason)
	failJob(context.WithoutCancel(ctx), h.jobs, h.tracker, h.logger, args.JobID, msg)
}

// failJob marks an active job failed. A job that already reached a terminal state is
// left alone.
func failJob(ctx context.Context, jobs store.Job, tracker pipeline.Tracker, logger *log.StructuredLogger, jobID, msg string) bool {
	tracer := logger.WithContext(ctx).Operation("fail_job").WithString("job_id", jobID).Build()
	err := jobs.Fail(ctx, jobID, msg, "Processing failed")
	switch {
	case errors.Is(err, store.ErrJobTerminal), errors.Is(err, store.ErrRecordNotFound):
		return false
	case err != nil:
		tracer.Error(err).Log()
		return false
	}
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusFailed))
	tracer.Success().WithString("error", msg).Log()

	if tracker != nil {
		if job, err := jobs.Get(ctx, jobID); err == nil {
			if err := tracker.Track(ctx, job); err != nil {
				tracer.Warn(err).Log()
			}
		}
	}
	return true
}
