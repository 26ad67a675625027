package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/publish"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/chaptermaker/chaptermaker/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DefaultBatchMaxSize   = 5
	DefaultDownloadExpiry = time.Hour
	DefaultListLimit      = 10
	MaxListLimit          = 100
)

// Queue schedules pipeline runs. *queue.Client implements it.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) (int64, error)
	EnqueueMany(ctx context.Context, jobIDs []string) ([]int64, error)
	Cancel(ctx context.Context, queueJobID int64) error
}

type ProcessRequest struct {
	VideoPath        string
	PresentationPath string
	Options          model.JobOptions
}

type ListParams struct {
	Status string
	Limit  int
	Offset int
}

// JobResults is the results view of a job. OutputFiles and DownloadURLs are only set
// once the job completed.
type JobResults struct {
	JobID        string
	Status       model.JobStatus
	Statistics   *model.JobStatistics
	OutputFiles  map[string]string
	DownloadURLs map[string]string
}

type JobService struct {
	store          store.Store
	objects        storage.ObjectStore
	queue          Queue
	tracker        pipeline.Tracker
	batchMaxSize   int
	downloadExpiry time.Duration
	logger         *log.StructuredLogger
}

type JobServiceOpt func(s *JobService)

func WithTracker(t pipeline.Tracker) JobServiceOpt {
	return func(s *JobService) {
		s.tracker = t
	}
}

func WithBatchMaxSize(n int) JobServiceOpt {
	return func(s *JobService) {
		if n > 0 {
			s.batchMaxSize = n
		}
	}
}

func WithDownloadExpiry(d time.Duration) JobServiceOpt {
	return func(s *JobService) {
		if d > 0 {
			s.downloadExpiry = d
		}
	}
}

func NewJobService(s store.Store, objects storage.ObjectStore, q Queue, opts ...JobServiceOpt) *JobService {
	srv := &JobService{
		store:          s,
		objects:        objects,
		queue:          q,
		batchMaxSize:   DefaultBatchMaxSize,
		downloadExpiry: DefaultDownloadExpiry,
		logger:         log.NewDebugLogger("job_service"),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// NewJobID returns an id of the form job_<12 hex>.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *JobService) Submit(ctx context.Context, req ProcessRequest) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("submit_job").
		WithString("video_path", req.VideoPath).
		WithString("presentation_path", req.PresentationPath).
		Build()

	if err := validatePair(req); err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	jobs, err := s.create(ctx, []ProcessRequest{req})
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}
	job := &jobs[0]

	queueID, err := s.queue.Enqueue(ctx, job.ID)
	if err != nil {
		s.abandon(ctx, jobs)
		tracer.Error(err).Log()
		return nil, fmt.Errorf("scheduling job: %w", err)
	}
	s.recordQueueIDs(ctx, jobs, []int64{queueID})

	metrics.IncreaseJobsSubmittedMetric(1)
	tracer.Success().WithString("job_id", job.ID).Log()
	return job, nil
}

// SubmitBatch creates one independent job per pair. All of them are scheduled in a
// single queue transaction, in no particular order.
func (s *JobService) SubmitBatch(ctx context.Context, reqs []ProcessRequest) (model.JobList, error) {
	tracer := s.logger.WithContext(ctx).Operation("submit_batch").WithInt("items", len(reqs)).Build()

	if len(reqs) == 0 {
		return nil, NewErrInvalidInput("batch has no items")
	}
	if len(reqs) > s.batchMaxSize {
		return nil, NewErrInvalidInput("batch size exceeds limit of %d", s.batchMaxSize)
	}
	for i, r := range reqs {
		if err := validatePair(r); err != nil {
			err = NewErrInvalidInput("item %d: %s", i, strings.TrimPrefix(err.Error(), "bad request: "))
			tracer.Error(err).Log()
			return nil, err
		}
	}

	jobs, err := s.create(ctx, reqs)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	queueIDs, err := s.queue.EnqueueMany(ctx, ids)
	if err != nil {
		s.abandon(ctx, jobs)
		tracer.Error(err).Log()
		return nil, fmt.Errorf("scheduling jobs: %w", err)
	}
	s.recordQueueIDs(ctx, jobs, queueIDs)

	metrics.IncreaseJobsSubmittedMetric(len(jobs))
	tracer.Success().WithParam("job_ids", ids).Log()
	return jobs, nil
}

// create commits the job rows before anything is queued, so a worker never picks up a
// job it cannot read.
func (s *JobService) create(ctx context.Context, reqs []ProcessRequest) (model.JobList, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make(model.JobList, 0, len(reqs))
	for _, r := range reqs {
		job, err := s.store.Job().Create(ctx, model.Job{
			ID:               NewJobID(),
			Status:           model.JobStatusPending,
			Message:          "Job queued",
			VideoPath:        r.VideoPath,
			PresentationPath: r.PresentationPath,
			Options:          datatypes.NewJSONType(r.Options),
		})
		if err != nil {
			_, _ = store.Rollback(ctx)
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	return jobs, nil
}

// abandon fails jobs whose queue insertion failed. Nothing would ever run them.
func (s *JobService) abandon(ctx context.Context, jobs model.JobList) {
	ctx = context.WithoutCancel(ctx)
	for _, j := range jobs {
		if err := s.store.Job().Fail(ctx, j.ID, "failed to schedule job", "Scheduling failed"); err != nil {
			s.logger.WithContext(ctx).Operation("abandon_job").WithString("job_id", j.ID).Build().Warn(err).Log()
			continue
		}
		s.track(ctx, j.ID)
	}
}

func (s *JobService) recordQueueIDs(ctx context.Context, jobs model.JobList, queueIDs []int64) {
	for i := range jobs {
		if i >= len(queueIDs) {
			break
		}
		queueID := queueIDs[i]
		if err := s.store.Job().SetQueueJobID(ctx, jobs[i].ID, queueID); err != nil {
			s.logger.WithContext(ctx).Operation("record_queue_id").WithString("job_id", jobs[i].ID).Build().Warn(err).Log()
			continue
		}
		jobs[i].QueueJobID = &queueID
		s.track(ctx, jobs[i].ID)
	}
}

func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *JobService) List(ctx context.Context, params ListParams) (model.JobList, int64, error) {
	filter := store.NewJobQueryFilter()
	if params.Status != "" {
		status := model.JobStatus(params.Status)
		if !status.Valid() {
			return nil, 0, NewErrInvalidInput("unknown status %q", params.Status)
		}
		filter = filter.ByStatus(status)
	}
	if params.Limit <= 0 {
		params.Limit = DefaultListLimit
	}
	if params.Limit > MaxListLimit {
		params.Limit = MaxListLimit
	}
	if params.Offset < 0 {
		return nil, 0, NewErrInvalidInput("offset must not be negative")
	}

	total, err := s.store.Job().Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	jobs, err := s.store.Job().List(ctx, filter, store.NewJobQueryOptions().
		WithSortOrder(store.SortByCreatedTimeDesc).
		WithLimit(params.Limit).
		WithOffset(params.Offset))
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Results signs a read URL per published artifact. The slides prefix is expanded into
// one entry per image, keyed slides/<name>.
func (s *JobService) Results(ctx context.Context, id string) (*JobResults, error) {
	tracer := s.logger.WithContext(ctx).Operation("job_results").WithString("job_id", id).Build()

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := job.Snapshot()
	res := &JobResults{JobID: job.ID, Status: job.Status, Statistics: snapshot.Statistics}
	if job.Status != model.JobStatusCompleted {
		return res, nil
	}

	res.OutputFiles = snapshot.Results
	res.DownloadURLs = map[string]string{}
	for key, p := range snapshot.Results {
		if !strings.HasSuffix(p, "/") {
			u, err := s.objects.PresignedGet(ctx, p, s.downloadExpiry)
			if err != nil {
				tracer.Error(err).Log()
				return nil, fmt.Errorf("failed to sign download url: %w", err)
			}
			res.DownloadURLs[key] = u.String()
			continue
		}

		objs, err := s.objects.List(ctx, p)
		if err != nil {
			tracer.Error(err).Log()
			return nil, err
		}
		for _, o := range objs {
			u, err := s.objects.PresignedGet(ctx, o.Path, s.downloadExpiry)
			if err != nil {
				tracer.Error(err).Log()
				return nil, fmt.Errorf("failed to sign download url: %w", err)
			}
			res.DownloadURLs[key+"/"+path.Base(o.Path)] = u.String()
		}
	}

	tracer.Success().WithInt("urls", len(res.DownloadURLs)).Log()
	return res, nil
}

// Cancel cancels a pending job outright and flags a processing one; the worker stops it
// at the next stage boundary.
func (s *JobService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("cancel_job").WithString("job_id", id).Build()

	job, err := s.store.Job().RequestCancel(ctx, id)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return nil, NewErrJobNotFound(id)
	case errors.Is(err, store.ErrJobTerminal):
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, NewErrJobAlreadyFinished(id, current.Status)
	case err != nil:
		tracer.Error(err).Log()
		return nil, err
	}

	if job.Status == model.JobStatusCancelled {
		metrics.IncreaseJobsFinishedMetric(string(model.JobStatusCancelled))
		if job.QueueJobID != nil {
			if err := s.queue.Cancel(ctx, *job.QueueJobID); err != nil {
				tracer.Warn(err).Log()
			}
		}
	}
	s.track(ctx, id)

	tracer.Success().WithString("status", string(job.Status)).Log()
	return job, nil
}

// Archive lists the objects of a completed job for DownloadAll.
func (s *JobService) Archive(ctx context.Context, id string) (*Archive, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, NewErrJobNotCompleted(id, job.Status)
	}

	objs, err := s.objects.List(ctx, publish.OutputDir(id))
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, NewErrJobNotFound(id)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Path < objs[j].Path })

	return &Archive{Name: id + ".zip", objects: s.objects, entries: objs}, nil
}

func (s *JobService) track(ctx context.Context, id string) {
	if s.tracker == nil {
		return
	}
	job, err := s.store.Job().Get(ctx, id)
	if err == nil {
		err = s.tracker.Track(ctx, job)
	}
	if err != nil {
		s.logger.WithContext(ctx).Operation("track_job").WithString("job_id", id).Build().Warn(err).Log()
	}
}

// validatePair checks the shape of a submission. Formats and existence are checked by
// the pipeline, so a bad source fails its own job instead of the request.
func validatePair(r ProcessRequest) error {
	for _, p := range []struct{ name, value string }{
		{"video_path", r.VideoPath},
		{"presentation_path", r.PresentationPath},
	} {
		if strings.TrimSpace(p.value) == "" {
			return NewErrInvalidInput("%s is required", p.name)
		}
		if !strings.HasPrefix(p.value, storage.UploadsPrefix) || path.Clean(p.value) != p.value {
			return NewErrInvalidInput("%s must be a path under %s", p.name, storage.UploadsPrefix)
		}
	}
	if r.VideoPath == r.PresentationPath {
		return NewErrInvalidInput("video_path and presentation_path must differ")
	}
	return nil
}
