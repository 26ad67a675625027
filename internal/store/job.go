package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job persists pipeline jobs. Every mutation is a conditional update guarded on the
// current status so a terminal job is never written again.
type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	SetQueueJobID(ctx context.Context, id string, queueJobID int64) error
	Start(ctx context.Context, id string, attempt int, message string) (*model.Job, error)
	UpdateProgress(ctx context.Context, id string, progress int, message string) error
	Complete(ctx context.Context, id string, results map[string]string, stats model.JobStatistics, message string) error
	Fail(ctx context.Context, id string, errMsg string, message string) error
	Cancel(ctx context.Context, id string, message string) error
	RequestCancel(ctx context.Context, id string) (*model.Job, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	if err := s.getDB(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).Model(&jobs)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	var count int64
	tx := s.getDB(ctx).Model(&model.Job{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if err := tx.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

func (s *JobStore) SetQueueJobID(ctx context.Context, id string, queueJobID int64) error {
	result := s.getDB(ctx).Model(&model.Job{}).Where("id = ?", id).Update("queue_job_id", queueJobID)
	if result.Error != nil {
		return fmt.Errorf("updating queue job id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Start moves a job to processing. A redelivered job that is already processing keeps its
// progress, so progress never moves backwards across attempts.
func (s *JobStore) Start(ctx context.Context, id string, attempt int, message string) (*model.Job, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, model.ActiveStatuses).
		Updates(map[string]any{
			"status":     model.JobStatusProcessing,
			"message":    message,
			"attempts":   attempt,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("starting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.explain(ctx, id)
	}
	return s.Get(ctx, id)
}

func (s *JobStore) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ? AND progress <= ?", id, model.JobStatusProcessing, progress).
		Updates(map[string]any{
			"progress":   progress,
			"message":    message,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("updating job progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.explain(ctx, id)
	}
	return nil
}

// Complete sets status, progress, results and statistics in a single write.
func (s *JobStore) Complete(ctx context.Context, id string, results map[string]string, stats model.JobStatistics, message string) error {
	if len(results) == 0 {
		return fmt.Errorf("%w: completion without results", ErrInvalidTransition)
	}
	now := time.Now().UTC()
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(map[string]any{
			"status":       model.JobStatusCompleted,
			"progress":     100,
			"message":      message,
			"results":      datatypes.NewJSONType(results),
			"statistics":   datatypes.NewJSONType(&stats),
			"updated_at":   now,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("completing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.explain(ctx, id)
	}
	return nil
}

func (s *JobStore) Fail(ctx context.Context, id string, errMsg string, message string) error {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	now := time.Now().UTC()
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, model.ActiveStatuses).
		Updates(map[string]any{
			"status":       model.JobStatusFailed,
			"message":      message,
			"error":        errMsg,
			"updated_at":   now,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.explain(ctx, id)
	}
	return nil
}

func (s *JobStore) Cancel(ctx context.Context, id string, message string) error {
	now := time.Now().UTC()
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, model.ActiveStatuses).
		Updates(map[string]any{
			"status":       model.JobStatusCancelled,
			"message":      message,
			"updated_at":   now,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("cancelling job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.explain(ctx, id)
	}
	return nil
}

// RequestCancel cancels a pending job outright. A processing job only gets its cancel flag
// raised; the worker stops at the next stage boundary.
func (s *JobStore) RequestCancel(ctx context.Context, id string) (*model.Job, error) {
	now := time.Now().UTC()
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusPending).
		Updates(map[string]any{
			"status":           model.JobStatusCancelled,
			"cancel_requested": true,
			"message":          "Job cancelled before processing started",
			"updated_at":       now,
			"completed_at":     now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("cancelling job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		result = s.getDB(ctx).Model(&model.Job{}).
			Where("id = ? AND status = ?", id, model.JobStatusProcessing).
			Updates(map[string]any{
				"cancel_requested": true,
				"message":          "Cancellation requested",
				"updated_at":       now,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("requesting job cancellation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, s.explain(ctx, id)
		}
	}
	return s.Get(ctx, id)
}

func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.getDB(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&model.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// explain turns a guarded update that matched no row into the matching sentinel error.
func (s *JobStore) explain(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}
	return ErrInvalidTransition
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
