package queue_test

import (
	"context"
	"errors"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

type fakeRunner struct {
	err      error
	attempts []pipeline.Attempt
}

func (f *fakeRunner) Run(_ context.Context, attempt pipeline.Attempt) error {
	f.attempts = append(f.attempts, attempt)
	return f.err
}

func riverJob(attempt, maxAttempts int) *river.Job[queue.ProcessArgs] {
	return &river.Job[queue.ProcessArgs]{
		JobRow: &rivertype.JobRow{ID: 7, Attempt: attempt, MaxAttempts: maxAttempts},
		Args:   queue.ProcessArgs{JobID: "job_0123456789ab"},
	}
}

var _ = Describe("ProcessArgs", func() {
	It("returns the job kind", func() {
		Expect(queue.ProcessArgs{}.Kind()).To(Equal("chaptermaker_process"))
	})

	It("returns default insert options", func() {
		opts := queue.ProcessArgs{}.InsertOpts()
		Expect(opts.Queue).To(Equal(queue.DefaultQueue))
		Expect(opts.MaxAttempts).To(Equal(queue.DefaultMaxAttempts))
	})
})

var _ = Describe("ProcessWorker", func() {
	It("uses the configured timeout", func() {
		Expect(queue.NewProcessWorker(&fakeRunner{}, 5*time.Minute).Timeout(nil)).To(Equal(5 * time.Minute))
		Expect(queue.NewProcessWorker(&fakeRunner{}, 0).Timeout(nil)).To(Equal(queue.DefaultJobTimeout))
	})

	It("passes the attempt to the runner", func() {
		runner := &fakeRunner{}
		Expect(queue.NewProcessWorker(runner, 0).Work(context.TODO(), riverJob(2, 3))).To(Succeed())
		Expect(runner.attempts).To(Equal([]pipeline.Attempt{{JobID: "job_0123456789ab", Number: 2, MaxAttempts: 3}}))
	})

	It("returns transient errors so the queue retries", func() {
		transient := pipeline.NewTransientError("slide extraction: renderer busy", nil)
		err := queue.NewProcessWorker(&fakeRunner{err: transient}, 0).Work(context.TODO(), riverJob(1, 3))
		Expect(err).To(Equal(error(transient)))
	})

	It("cancels the queue job on a permanent error", func() {
		permanent := pipeline.NewPermanentError("transcription: undecodable media", nil)
		err := queue.NewProcessWorker(&fakeRunner{err: permanent}, 0).Work(context.TODO(), riverJob(1, 3))
		Expect(err).ToNot(Equal(error(permanent)))
		Expect(errors.Is(err, permanent)).To(BeTrue())
	})

	It("does not run when the context is already done", func() {
		runner := &fakeRunner{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(queue.NewProcessWorker(runner, 0).Work(ctx, riverJob(1, 3))).To(MatchError(context.Canceled))
		Expect(runner.attempts).To(BeEmpty())
	})
})
