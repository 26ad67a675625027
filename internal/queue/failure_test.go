package queue_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaptermaker/chaptermaker/internal/config"
	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/queue"
	st "github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

type fakeLookup struct {
	rows map[int64]*rivertype.JobRow
	err  error
}

func (f *fakeLookup) JobGet(_ context.Context, id int64) (*rivertype.JobRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, river.ErrNotFound
	}
	return row, nil
}

type countingTracker struct {
	statuses []model.JobStatus
}

func (c *countingTracker) Track(_ context.Context, job *model.Job) error {
	c.statuses = append(c.statuses, job.Status)
	return nil
}

var _ = Describe("queue failure handling", Ordered, func() {
	var (
		s   st.Store
		ctx = context.TODO()
		seq int
	)

	newJob := func(status model.JobStatus, queueJobID int64) string {
		seq++
		id := fmt.Sprintf("job_%012x", seq)
		_, err := s.Job().Create(ctx, model.Job{ID: id, VideoPath: "uploads/a/b/talk.mp4", PresentationPath: "uploads/a/c/deck.pdf"})
		Expect(err).To(BeNil())
		if queueJobID > 0 {
			Expect(s.Job().SetQueueJobID(ctx, id, queueJobID)).To(Succeed())
		}
		if status == model.JobStatusProcessing {
			_, err := s.Job().Start(ctx, id, 1, "Starting processing")
			Expect(err).To(BeNil())
		}
		return id
	}

	get := func(id string) *model.Job {
		job, err := s.Job().Get(ctx, id)
		Expect(err).To(BeNil())
		return job
	}

	row := func(jobID string, attempt, maxAttempts int) *rivertype.JobRow {
		return &rivertype.JobRow{
			ID:          int64(seq),
			Kind:        queue.JobKind,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			EncodedArgs: []byte(fmt.Sprintf(`{"job_id":%q}`, jobID)),
		}
	}

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		s = st.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	Context("error handler", func() {
		It("fails the job when a worker panics on the last attempt", func() {
			id := newJob(model.JobStatusProcessing, 0)
			tracker := &countingTracker{}

			res := queue.NewFailureHandler(s.Job(), tracker).HandlePanic(ctx, row(id, 3, 3), "decoder crashed", "goroutine 1")
			Expect(res).To(BeNil())

			job := get(id)
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(*job.Error).To(Equal("processing failed after 3 attempts: worker panicked"))
			Expect(tracker.statuses).To(Equal([]model.JobStatus{model.JobStatusFailed}))
		})

		It("leaves the job for the next attempt", func() {
			id := newJob(model.JobStatusProcessing, 0)

			queue.NewFailureHandler(s.Job(), nil).HandlePanic(ctx, row(id, 1, 3), "decoder crashed", "")
			queue.NewFailureHandler(s.Job(), nil).HandleError(ctx, row(id, 2, 3), errors.New("boom"))

			Expect(get(id).Status).To(Equal(model.JobStatusProcessing))
		})

		It("fails the job when the last attempt times out before the pipeline ran", func() {
			id := newJob(model.JobStatusProcessing, 0)

			queue.NewFailureHandler(s.Job(), nil).HandleError(ctx, row(id, 3, 3), context.DeadlineExceeded)

			job := get(id)
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(*job.Error).To(Equal("processing failed after 3 attempts: timed out"))
		})

		It("keeps the reason the pipeline already recorded", func() {
			id := newJob(model.JobStatusProcessing, 0)
			Expect(s.Job().Fail(ctx, id, "transcription: undecodable media", "Processing failed")).To(Succeed())

			permanent := pipeline.NewPermanentError("transcription: undecodable media", nil)
			queue.NewFailureHandler(s.Job(), nil).HandleError(ctx, row(id, 3, 3), river.JobCancel(permanent))
			queue.NewFailureHandler(s.Job(), nil).HandleError(ctx, row(id, 3, 3), permanent)

			Expect(*get(id).Error).To(Equal("transcription: undecodable media"))
		})

		It("ignores rows of other kinds", func() {
			id := newJob(model.JobStatusProcessing, 0)
			r := row(id, 3, 3)
			r.Kind = "something_else"

			queue.NewFailureHandler(s.Job(), nil).HandleError(ctx, r, errors.New("boom"))
			Expect(get(id).Status).To(Equal(model.JobStatusProcessing))
		})
	})

	Context("reconciler", func() {
		It("fails jobs whose queue run was discarded or lost", func() {
			discarded := newJob(model.JobStatusProcessing, 101)
			lost := newJob(model.JobStatusPending, 102)
			running := newJob(model.JobStatusProcessing, 103)
			unqueued := newJob(model.JobStatusPending, 0)
			lookup := &fakeLookup{rows: map[int64]*rivertype.JobRow{
				101: {ID: 101, State: rivertype.JobStateDiscarded, Attempt: 3, MaxAttempts: 3},
				103: {ID: 103, State: rivertype.JobStateRunning, Attempt: 2, MaxAttempts: 3},
			}}
			tracker := &countingTracker{}

			changed, err := queue.NewReconciler(s.Job(), lookup, queue.WithReconcileTracker(tracker)).Reconcile(ctx)
			Expect(err).To(BeNil())
			Expect(changed).To(BeNumerically(">=", 2))

			job := get(discarded)
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(*job.Error).To(Equal("processing failed after 3 attempts: worker lost"))
			Expect(*get(lost).Error).To(Equal("processing failed: queue job lost"))
			Expect(get(running).Status).To(Equal(model.JobStatusProcessing))
			Expect(get(unqueued).Status).To(Equal(model.JobStatusPending))
			Expect(tracker.statuses).To(ContainElement(model.JobStatusFailed))
		})

		It("cancels a job whose cancellation withdrew the queue run", func() {
			id := newJob(model.JobStatusProcessing, 201)
			_, err := s.Job().RequestCancel(ctx, id)
			Expect(err).To(BeNil())
			lookup := &fakeLookup{rows: map[int64]*rivertype.JobRow{
				201: {ID: 201, State: rivertype.JobStateCancelled, Attempt: 1, MaxAttempts: 3},
			}}

			_, err = queue.NewReconciler(s.Job(), lookup).Reconcile(ctx)
			Expect(err).To(BeNil())
			Expect(get(id).Status).To(Equal(model.JobStatusCancelled))
		})

		It("leaves everything alone when the queue cannot be read", func() {
			id := newJob(model.JobStatusProcessing, 301)

			_, err := queue.NewReconciler(s.Job(), &fakeLookup{err: errors.New("connection refused")}).Reconcile(ctx)
			Expect(err).To(BeNil())
			Expect(get(id).Status).To(Equal(model.JobStatusProcessing))
		})
	})
})
