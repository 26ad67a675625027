package retention

import (
	"context"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"github.com/chaptermaker/chaptermaker/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
)

const (
	DefaultMaxAge   = 24 * time.Hour
	DefaultInterval = 24 * time.Hour
)

// Prefixes are the namespaces subject to age-based deletion.
var Prefixes = []string{storage.UploadsPrefix, storage.OutputsPrefix, storage.TrackingPrefix}

// Result is the outcome of one sweep.
type Result struct {
	Removed     []string
	Errors      []CleanupError
	JobsDeleted int64
}

// CleanupError pairs an object path, or a prefix when listing failed, with its error.
type CleanupError struct {
	Path  string
	Error error
}

type Sweeper struct {
	objects  storage.ObjectStore
	jobs     store.Job
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *log.StructuredLogger
}

type Option func(s *Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func NewSweeper(objects storage.ObjectStore, jobs store.Job, maxAge time.Duration, opts ...Option) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s := &Sweeper{
		objects:  objects,
		jobs:     jobs,
		maxAge:   maxAge,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   log.NewInfoLogger("retention_sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep deletes every object and job record older than the maximum age. Objects that
// vanish concurrently are not errors, so repeated sweeps are safe.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	cutoff := s.now().Add(-s.maxAge)
	tracer := s.logger.WithContext(ctx).Operation("sweep").WithParam("cutoff", cutoff).Build()

	var result Result
	for _, prefix := range Prefixes {
		objs, err := s.objects.List(ctx, prefix)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: prefix, Error: err})
			tracer.Warn(err).WithString("prefix", prefix).Log()
			continue
		}
		for _, o := range objs {
			if !o.LastModified.Before(cutoff) {
				continue
			}
			if err := s.objects.Remove(ctx, o.Path); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: o.Path, Error: err})
				tracer.Warn(err).WithString("path", o.Path).Log()
				continue
			}
			result.Removed = append(result.Removed, o.Path)
		}
	}

	deleted, err := s.jobs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: "jobs", Error: err})
		tracer.Warn(err).Log()
	}
	result.JobsDeleted = deleted

	metrics.IncreaseRetentionDeletedMetric("objects", len(result.Removed))
	metrics.IncreaseRetentionDeletedMetric("jobs", int(deleted))
	metrics.IncreaseRetentionErrorsMetric(len(result.Errors))

	tracer.Success().
		WithInt("objects_removed", len(result.Removed)).
		WithInt("jobs_deleted", int(deleted)).
		WithInt("errors", len(result.Errors)).
		Log()
	return result
}

// Run sweeps once, then on a jittered ticker until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Sweep(ctx)

	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: s.interval / 100, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
