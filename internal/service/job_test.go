package service_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/config"
	"github.com/chaptermaker/chaptermaker/internal/pipeline/stages"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type fakeQueue struct {
	next      int64
	err       error
	enqueued  []string
	batches   int
	cancelled []int64
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID string) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	q.next++
	q.enqueued = append(q.enqueued, jobID)
	return q.next, nil
}

func (q *fakeQueue) EnqueueMany(_ context.Context, jobIDs []string) ([]int64, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.batches++
	ids := make([]int64, 0, len(jobIDs))
	for _, id := range jobIDs {
		q.next++
		q.enqueued = append(q.enqueued, id)
		ids = append(ids, q.next)
	}
	return ids, nil
}

func (q *fakeQueue) Cancel(_ context.Context, queueJobID int64) error {
	q.cancelled = append(q.cancelled, queueJobID)
	return nil
}

func pair(name string) service.ProcessRequest {
	return service.ProcessRequest{
		VideoPath:        "uploads/20261019_120000/aaaa1111/" + name + ".mp4",
		PresentationPath: "uploads/20261019_120000/bbbb2222/" + name + ".pdf",
	}
}

var _ = Describe("job service", Ordered, func() {
	var (
		s       store.Store
		gormDB  *gorm.DB
		objects *storage.MemoryStore
		queue   *fakeQueue
		srv     *service.JobService
		ctx     = context.TODO()
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		gormDB = db
		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		objects = storage.NewMemoryStore()
		queue = &fakeQueue{}
		srv = service.NewJobService(s, objects, queue,
			service.WithTracker(stages.NewObjectTracker(objects)),
			service.WithBatchMaxSize(3),
		)
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM jobs;")
	})

	complete := func(id string, results map[string]string) {
		_, err := s.Job().Start(ctx, id, 1, "Starting")
		Expect(err).To(BeNil())
		Expect(s.Job().Complete(ctx, id, results, model.JobStatistics{ChaptersCount: 2}, "Done")).To(Succeed())
	}

	put := func(key, data string) {
		Expect(objects.Put(ctx, key, strings.NewReader(data), int64(len(data)), "")).To(Succeed())
	}

	Context("submit", func() {
		It("creates a pending job and schedules it", func() {
			req := pair("talk")
			no := false
			req.Options = model.JobOptions{Language: "de", GenerateSubtitles: &no}

			job, err := srv.Submit(ctx, req)
			Expect(err).To(BeNil())
			Expect(job.ID).To(MatchRegexp(`^job_[0-9a-f]{12}$`))
			Expect(job.Status).To(Equal(model.JobStatusPending))
			Expect(job.QueueJobID).ToNot(BeNil())
			Expect(queue.enqueued).To(Equal([]string{job.ID}))

			stored, err := s.Job().Get(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(stored.Options.Data().Language).To(Equal("de"))
			Expect(stored.Options.Data().SubtitlesEnabled()).To(BeFalse())
			Expect(*stored.QueueJobID).To(BeEquivalentTo(1))

			_, err = objects.Stat(ctx, stages.TrackingPath(job.ID))
			Expect(err).To(BeNil())
		})

		DescribeTable("rejects malformed pairs",
			func(req service.ProcessRequest) {
				_, err := srv.Submit(ctx, req)
				var invalid *service.ErrInvalidInput
				Expect(errors.As(err, &invalid)).To(BeTrue())
				Expect(queue.enqueued).To(BeEmpty())

				count, _ := s.Job().Count(ctx, store.NewJobQueryFilter())
				Expect(count).To(BeZero())
			},
			Entry("missing video", service.ProcessRequest{PresentationPath: "uploads/a/b/deck.pdf"}),
			Entry("missing presentation", service.ProcessRequest{VideoPath: "uploads/a/b/talk.mp4"}),
			Entry("outside uploads", service.ProcessRequest{VideoPath: "outputs/job_x/transcript.txt", PresentationPath: "uploads/a/b/deck.pdf"}),
			Entry("path traversal", service.ProcessRequest{VideoPath: "uploads/../outputs/talk.mp4", PresentationPath: "uploads/a/b/deck.pdf"}),
			Entry("same object twice", service.ProcessRequest{VideoPath: "uploads/a/b/talk.mp4", PresentationPath: "uploads/a/b/talk.mp4"}),
		)

		It("accepts a presentation with an unsupported extension", func() {
			req := pair("talk")
			req.PresentationPath = "uploads/20261019_120000/bbbb2222/deck.key"
			job, err := srv.Submit(ctx, req)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusPending))
		})

		It("fails the job when it cannot be scheduled", func() {
			queue.err = errors.New("queue down")
			_, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(MatchError(ContainSubstring("queue down")))

			jobs, err := s.Job().List(ctx, store.NewJobQueryFilter(), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(model.JobStatusFailed))
			Expect(*jobs[0].Error).To(Equal("failed to schedule job"))
		})
	})

	Context("batch", func() {
		It("creates one job per pair in a single insertion", func() {
			jobs, err := srv.SubmitBatch(ctx, []service.ProcessRequest{pair("a"), pair("b"), pair("c")})
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))
			Expect(queue.batches).To(Equal(1))

			ids := map[string]bool{}
			for i, j := range jobs {
				ids[j.ID] = true
				Expect(j.Status).To(Equal(model.JobStatusPending))
				Expect(j.VideoPath).To(HaveSuffix([]string{"a", "b", "c"}[i] + ".mp4"))
				Expect(j.QueueJobID).ToNot(BeNil())
			}
			Expect(ids).To(HaveLen(3))
		})

		It("rejects batches over the limit", func() {
			_, err := srv.SubmitBatch(ctx, []service.ProcessRequest{pair("a"), pair("b"), pair("c"), pair("d")})
			Expect(err).To(MatchError(ContainSubstring("exceeds limit of 3")))
			Expect(queue.enqueued).To(BeEmpty())
		})

		It("rejects an empty batch", func() {
			_, err := srv.SubmitBatch(ctx, nil)
			var invalid *service.ErrInvalidInput
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("names the malformed item", func() {
			_, err := srv.SubmitBatch(ctx, []service.ProcessRequest{pair("a"), {VideoPath: "uploads/x/y/v.mp4"}})
			Expect(err).To(MatchError(ContainSubstring("item 1: presentation_path is required")))
			count, _ := s.Job().Count(ctx, store.NewJobQueryFilter())
			Expect(count).To(BeZero())
		})
	})

	Context("get and list", func() {
		It("returns not found for unknown jobs", func() {
			_, err := srv.Get(ctx, "job_000000000000")
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("filters and paginates", func() {
			jobs, err := srv.SubmitBatch(ctx, []service.ProcessRequest{pair("a"), pair("b"), pair("c")})
			Expect(err).To(BeNil())
			_, err = srv.Cancel(ctx, jobs[0].ID)
			Expect(err).To(BeNil())

			pending, total, err := srv.List(ctx, service.ListParams{Status: "pending"})
			Expect(err).To(BeNil())
			Expect(pending).To(HaveLen(2))
			Expect(total).To(BeEquivalentTo(2))

			page, total, err := srv.List(ctx, service.ListParams{Limit: 1, Offset: 1})
			Expect(err).To(BeNil())
			Expect(page).To(HaveLen(1))
			Expect(total).To(BeEquivalentTo(3))

			_, _, err = srv.List(ctx, service.ListParams{Status: "done"})
			var invalid *service.ErrInvalidInput
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})
	})

	Context("results", func() {
		It("has no links before completion", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())

			res, err := srv.Results(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(res.Status).To(Equal(model.JobStatusPending))
			Expect(res.DownloadURLs).To(BeNil())
			Expect(res.Statistics).To(BeNil())
		})

		It("signs one link per artifact and slide", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())
			dir := "outputs/" + job.ID + "/"
			put(dir+"importChapters.csv", "csv")
			put(dir+"slides/01.jpg", "jpg")
			put(dir+"slides/qa.jpg", "jpg")
			complete(job.ID, map[string]string{"chapters": dir + "importChapters.csv", "slides": dir + "slides/"})

			res, err := srv.Results(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(res.Statistics.ChaptersCount).To(Equal(2))
			Expect(res.DownloadURLs).To(HaveLen(3))
			Expect(res.DownloadURLs).To(HaveKey("chapters"))
			Expect(res.DownloadURLs).To(HaveKey("slides/01.jpg"))
			Expect(res.DownloadURLs["slides/qa.jpg"]).To(ContainSubstring("method=GET"))
		})
	})

	Context("cancel", func() {
		It("cancels a pending job and withdraws it from the queue", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())

			cancelled, err := srv.Cancel(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(model.JobStatusCancelled))
			Expect(queue.cancelled).To(Equal([]int64{*job.QueueJobID}))
		})

		It("flags a processing job", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())
			_, err = s.Job().Start(ctx, job.ID, 1, "Starting")
			Expect(err).To(BeNil())

			flagged, err := srv.Cancel(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(flagged.Status).To(Equal(model.JobStatusProcessing))
			Expect(flagged.CancelRequested).To(BeTrue())
			Expect(queue.cancelled).To(BeEmpty())
		})

		It("refuses to cancel a finished job", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())
			complete(job.ID, map[string]string{"chapters": "outputs/x"})

			_, err = srv.Cancel(ctx, job.ID)
			var finished *service.ErrJobAlreadyFinished
			Expect(errors.As(err, &finished)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("already completed"))
		})

		It("returns not found for unknown jobs", func() {
			_, err := srv.Cancel(ctx, "job_000000000000")
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("archive", func() {
		It("refuses jobs that are not completed", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())

			_, err = srv.Archive(ctx, job.ID)
			var notCompleted *service.ErrJobNotCompleted
			Expect(errors.As(err, &notCompleted)).To(BeTrue())
		})

		It("zips every published artifact", func() {
			job, err := srv.Submit(ctx, pair("talk"))
			Expect(err).To(BeNil())
			dir := "outputs/" + job.ID + "/"
			put(dir+"importChapters.csv", "Time (s),Image name,Description\n")
			put(dir+"transcript.txt", "hello")
			put(dir+"slides/01.jpg", "jpg")
			complete(job.ID, map[string]string{"chapters": dir + "importChapters.csv"})

			archive, err := srv.Archive(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(archive.Name).To(Equal(job.ID + ".zip"))

			var buf bytes.Buffer
			Expect(archive.WriteTo(ctx, &buf)).To(Succeed())

			zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			Expect(err).To(BeNil())
			contents := map[string]string{}
			for _, f := range zr.File {
				rc, err := f.Open()
				Expect(err).To(BeNil())
				data, _ := io.ReadAll(rc)
				rc.Close()
				contents[f.Name] = string(data)
			}
			Expect(contents).To(Equal(map[string]string{
				job.ID + "/importChapters.csv": "Time (s),Image name,Description\n",
				job.ID + "/slides/01.jpg":      "jpg",
				job.ID + "/transcript.txt":     "hello",
			}))
		})
	})
})
