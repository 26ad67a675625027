package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/chaptermaker/chaptermaker/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const DefaultReconcileInterval = 5 * time.Minute

// JobLookup reads queue rows. *Client implements it.
type JobLookup interface {
	JobGet(ctx context.Context, id int64) (*rivertype.JobRow, error)
}

// Reconciler finds job records that are still pending or processing although their
// queue row is finished. That happens when a worker process dies on the last attempt
// and the queue discards the run without any code getting to update the record.
type Reconciler struct {
	jobs     store.Job
	lookup   JobLookup
	tracker  pipeline.Tracker
	interval time.Duration
	logger   *log.StructuredLogger
}

type ReconcilerOption func(r *Reconciler)

func WithReconcileInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithReconcileTracker(t pipeline.Tracker) ReconcilerOption {
	return func(r *Reconciler) {
		r.tracker = t
	}
}

func NewReconciler(jobs store.Job, lookup JobLookup, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		jobs:     jobs,
		lookup:   lookup,
		interval: DefaultReconcileInterval,
		logger:   log.NewInfoLogger("queue_reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fails or cancels every active job whose queue run is over, and returns how
// many records it changed.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	tracer := r.logger.WithContext(ctx).Operation("reconcile").Build()

	active, err := r.jobs.List(ctx, store.NewJobQueryFilter().ByStatus(model.ActiveStatuses...), nil)
	if err != nil {
		return 0, fmt.Errorf("listing active jobs: %w", err)
	}

	changed := 0
	for _, job := range active {
		if job.QueueJobID == nil {
			continue
		}
		row, err := r.lookup.JobGet(ctx, *job.QueueJobID)
		if err != nil && !errors.Is(err, river.ErrNotFound) {
			tracer.Warn(err).WithString("job_id", job.ID).Log()
			continue
		}
		if r.settle(ctx, job, row) {
			changed++
		}
	}

	tracer.Success().WithInt("active", len(active)).WithInt("reconciled", changed).Log()
	return changed, nil
}

// settle brings one record in line with its queue row. A nil row means the queue no
// longer knows the run.
func (r *Reconciler) settle(ctx context.Context, job model.Job, row *rivertype.JobRow) bool {
	if row == nil {
		return failJob(ctx, r.jobs, r.tracker, r.logger, job.ID, "processing failed: queue job lost")
	}

	switch row.State {
	case rivertype.JobStateDiscarded:
		return failJob(ctx, r.jobs, r.tracker, r.logger, job.ID,
			fmt.Sprintf("processing failed after %d attempts: worker lost", row.Attempt))
	case rivertype.JobStateCancelled:
		if job.CancelRequested {
			return r.cancel(ctx, job.ID)
		}
		return failJob(ctx, r.jobs, r.tracker, r.logger, job.ID, "processing failed: queue job cancelled")
	case rivertype.JobStateCompleted:
		return failJob(ctx, r.jobs, r.tracker, r.logger, job.ID, "processing failed: run ended without a result")
	}
	return false
}

func (r *Reconciler) cancel(ctx context.Context, jobID string) bool {
	err := r.jobs.Cancel(ctx, jobID, "Job cancelled")
	if err != nil {
		if !errors.Is(err, store.ErrJobTerminal) {
			r.logger.WithContext(ctx).Operation("cancel_job").WithString("job_id", jobID).Build().Error(err).Log()
		}
		return false
	}
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusCancelled))
	if r.tracker != nil {
		if current, err := r.jobs.Get(ctx, jobID); err == nil {
			_ = r.tracker.Track(ctx, current)
		}
	}
	return true
}

// Run reconciles once, then on a jittered ticker until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	if _, err := r.Reconcile(ctx); err != nil {
		r.logger.WithContext(ctx).Operation("reconcile").Build().Warn(err).Log()
	}

	ticker := jitterbug.New(r.interval, &jitterbug.Norm{Stdev: r.interval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil {
				r.logger.WithContext(ctx).Operation("reconcile").Build().Warn(err).Log()
			}
		}
	}
}
