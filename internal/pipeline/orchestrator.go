package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/chaptermaker/chaptermaker/pkg/metrics"
)

// Stage is one step of the pipeline. Checkpoint is the progress reported once the stage
// has finished.
type Stage interface {
	Name() string
	Checkpoint() int
	Message() string
	Run(ctx context.Context, state *State) error
}

// Preflighter is implemented by stages that can reject a job from its inputs alone. All
// preflight checks run before the first stage, so such jobs fail without doing any work.
type Preflighter interface {
	Preflight(state *State) error
}

// Tracker mirrors each persisted job transition somewhere outside the job store.
type Tracker interface {
	Track(ctx context.Context, job *model.Job) error
}

type Attempt struct {
	JobID       string
	Number      int
	MaxAttempts int
}

func (a Attempt) Last() bool {
	return a.Number >= a.MaxAttempts
}

type Orchestrator struct {
	jobs     store.Job
	stages   []Stage
	tracker  Tracker
	workRoot string
	logger   *log.StructuredLogger
}

type Option func(o *Orchestrator)

func WithTracker(t Tracker) Option {
	return func(o *Orchestrator) {
		o.tracker = t
	}
}

// WithWorkRoot sets the directory under which per-run scratch directories are created.
func WithWorkRoot(dir string) Option {
	return func(o *Orchestrator) {
		o.workRoot = dir
	}
}

// NewOrchestrator checks that checkpoints strictly increase and that the last stage
// reports 100.
func NewOrchestrator(jobs store.Job, stages []Stage, opts ...Option) (*Orchestrator, error) {
	if len(stages) == 0 {
		return nil, errors.New("pipeline: no stages")
	}
	prev := 0
	for _, s := range stages {
		if s.Checkpoint() <= prev || s.Checkpoint() > 100 {
			return nil, fmt.Errorf("pipeline: stage %s has checkpoint %d after %d", s.Name(), s.Checkpoint(), prev)
		}
		prev = s.Checkpoint()
	}
	if prev != 100 {
		return nil, fmt.Errorf("pipeline: last checkpoint is %d, want 100", prev)
	}

	o := &Orchestrator{
		jobs:   jobs,
		stages: stages,
		logger: log.NewDebugLogger("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one attempt of a job. It returns nil when the job reached a terminal
// state or was already terminal, a *TransientError when the queue should retry, and a
// *PermanentError when the job failed for good.
func (o *Orchestrator) Run(ctx context.Context, attempt Attempt) error {
	tracer := o.logger.WithContext(ctx).Operation("run_job").
		WithString("job_id", attempt.JobID).
		WithInt("attempt", attempt.Number).
		Build()

	job, err := o.jobs.Start(ctx, attempt.JobID, attempt.Number, "Starting processing")
	switch {
	case errors.Is(err, store.ErrJobTerminal):
		tracer.Step("already_terminal").Log()
		return nil
	case errors.Is(err, store.ErrRecordNotFound):
		return NewPermanentError("job no longer exists", err)
	case err != nil:
		return NewTransientError("failed to start job", err)
	}
	o.track(ctx, attempt.JobID)

	if job.CancelRequested {
		return o.cancel(ctx, attempt.JobID, "before processing")
	}

	workDir, err := os.MkdirTemp(o.workRoot, job.ID+"-")
	if err != nil {
		return o.retryOrFail(ctx, attempt, "setup", NewTransientError("failed to create work directory", err))
	}
	defer os.RemoveAll(workDir)

	state := NewState(job, workDir)

	for _, stage := range o.stages {
		if p, ok := stage.(Preflighter); ok {
			if err := p.Preflight(state); err != nil {
				tracer.Error(err).WithString("stage", stage.Name()).Log()
				return o.fail(ctx, attempt.JobID, stage.Name(), err)
			}
		}
	}

	progress := job.Progress
	for _, stage := range o.stages {
		current, err := o.jobs.Get(ctx, attempt.JobID)
		if err != nil {
			return o.retryOrFail(ctx, attempt, stage.Name(), NewTransientError("failed to read job", err))
		}
		if current.Status.Terminal() {
			tracer.Step("terminal_mid_run").WithString("status", string(current.Status)).Log()
			return nil
		}
		if current.CancelRequested {
			return o.cancel(ctx, attempt.JobID, "before "+stage.Name())
		}

		tracer.Step(stage.Name()).Log()
		start := time.Now()
		err = runStage(ctx, stage, state)
		metrics.ObserveStageDuration(stage.Name(), outcome(err), time.Since(start).Seconds())
		if err != nil {
			tracer.Error(err).WithString("stage", stage.Name()).Log()
			if IsPermanent(err) {
				return o.fail(ctx, attempt.JobID, stage.Name(), err)
			}
			return o.retryOrFail(ctx, attempt, stage.Name(), err)
		}

		if stage.Checkpoint() == 100 {
			break
		}
		if stage.Checkpoint() > progress {
			progress = stage.Checkpoint()
		}
		if err := o.jobs.UpdateProgress(ctx, attempt.JobID, progress, stage.Message()); err != nil {
			if errors.Is(err, store.ErrJobTerminal) {
				return nil
			}
			return o.retryOrFail(ctx, attempt, stage.Name(), NewTransientError("failed to record progress", err))
		}
		o.track(ctx, attempt.JobID)
	}

	if len(state.Results) == 0 {
		return o.fail(ctx, attempt.JobID, "publication", NewPermanentError("no artifacts were published", nil))
	}

	if err := o.jobs.Complete(ctx, attempt.JobID, state.Results, state.Statistics(), "Processing completed"); err != nil {
		if errors.Is(err, store.ErrJobTerminal) {
			return nil
		}
		return o.retryOrFail(ctx, attempt, "completion", NewTransientError("failed to record completion", err))
	}
	o.track(ctx, attempt.JobID)
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusCompleted))
	tracer.Success().Log()
	return nil
}

// runStage turns a stage panic into a transient error so it goes through the same
// retry accounting as any other failure.
func runStage(ctx context.Context, stage Stage, state *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewTransientError("stage panicked", fmt.Errorf("%v", r))
		}
	}()
	return stage.Run(ctx, state)
}

func (o *Orchestrator) cancel(ctx context.Context, jobID, where string) error {
	ctx = context.WithoutCancel(ctx)
	if err := o.jobs.Cancel(ctx, jobID, "Job cancelled "+where); err != nil && !errors.Is(err, store.ErrJobTerminal) {
		return NewTransientError("failed to record cancellation", err)
	}
	o.track(ctx, jobID)
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusCancelled))
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, jobID, stage string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := fmt.Sprintf("%s: %s", stage, Reason(cause))
	if err := o.jobs.Fail(ctx, jobID, msg, "Processing failed"); err != nil && !errors.Is(err, store.ErrJobTerminal) {
		return NewTransientError("failed to record failure", err)
	}
	o.track(ctx, jobID)
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusFailed))
	return NewPermanentError(msg, cause)
}

// retryOrFail leaves the job processing so the queue can retry it, unless this was the
// last attempt, in which case the job fails.
func (o *Orchestrator) retryOrFail(ctx context.Context, attempt Attempt, stage string, cause error) error {
	if !attempt.Last() {
		return NewTransientError(fmt.Sprintf("%s: %s", stage, Reason(cause)), cause)
	}

	wctx := context.WithoutCancel(ctx)
	msg := fmt.Sprintf("processing failed after %d attempts: %s: %s", attempt.Number, stage, Reason(cause))
	if err := o.jobs.Fail(wctx, attempt.JobID, msg, "Processing failed"); err != nil && !errors.Is(err, store.ErrJobTerminal) {
		return NewTransientError("failed to record failure", err)
	}
	o.track(wctx, attempt.JobID)
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusFailed))
	return NewPermanentError(msg, cause)
}

func (o *Orchestrator) track(ctx context.Context, jobID string) {
	if o.tracker == nil {
		return
	}
	job, err := o.jobs.Get(ctx, jobID)
	if err == nil {
		err = o.tracker.Track(ctx, job)
	}
	if err != nil {
		o.logger.WithContext(ctx).Operation("track_job").WithString("job_id", jobID).Build().Warn(err).Log()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsPermanent(err):
		return "permanent"
	default:
		return "transient"
	}
}
