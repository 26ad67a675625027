package retention_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/config"
	"github.com/chaptermaker/chaptermaker/internal/retention"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type failingRemove struct {
	*storage.MemoryStore
	path string
}

func (f failingRemove) Remove(ctx context.Context, path string) error {
	if path == f.path {
		return errors.New("access denied")
	}
	return f.MemoryStore.Remove(ctx, path)
}

var _ = Describe("retention sweeper", Ordered, func() {
	var (
		s       store.Store
		gormDB  *gorm.DB
		objects *storage.MemoryStore
		now     = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		ctx     = context.TODO()
	)

	put := func(path string, age time.Duration) {
		Expect(objects.Put(ctx, path, strings.NewReader("x"), 1, "")).To(Succeed())
		objects.Touch(path, now.Add(-age))
	}

	exists := func(path string) bool {
		_, err := objects.Stat(ctx, path)
		return err == nil
	}

	newSweeper := func(o storage.ObjectStore) *retention.Sweeper {
		return retention.NewSweeper(o, s.Job(), 24*time.Hour, retention.WithClock(func() time.Time { return now }))
	}

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
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM jobs;")
	})

	It("removes only objects older than the threshold", func() {
		put("uploads/20261017_120000/aaaa1111/old.mp4", 48*time.Hour)
		put("outputs/job_0000000000a1/importChapters.csv", 25*time.Hour)
		put("job-tracking/job_0000000000a1.json", 24*time.Hour+time.Second)
		put("uploads/20261019_100000/bbbb2222/new.mp4", 2*time.Hour)
		put("outputs/job_0000000000a2/importChapters.csv", 24*time.Hour)
		put("other/keep.txt", 72*time.Hour)

		result := newSweeper(objects).Sweep(ctx)
		Expect(result.Errors).To(BeEmpty())
		Expect(result.Removed).To(ConsistOf(
			"uploads/20261017_120000/aaaa1111/old.mp4",
			"outputs/job_0000000000a1/importChapters.csv",
			"job-tracking/job_0000000000a1.json",
		))

		Expect(exists("uploads/20261019_100000/bbbb2222/new.mp4")).To(BeTrue())
		Expect(exists("outputs/job_0000000000a2/importChapters.csv")).To(BeTrue())
		Expect(exists("other/keep.txt")).To(BeTrue())
	})

	It("never touches young objects however often it runs", func() {
		put("uploads/20261019_110000/cccc3333/talk.mp4", time.Hour)
		sweeper := newSweeper(objects)
		for i := 0; i < 5; i++ {
			result := sweeper.Sweep(ctx)
			Expect(result.Removed).To(BeEmpty())
		}
		Expect(exists("uploads/20261019_110000/cccc3333/talk.mp4")).To(BeTrue())
	})

	It("is idempotent", func() {
		put("outputs/job_0000000000b1/subtitles.srt", 30*time.Hour)
		sweeper := newSweeper(objects)
		Expect(sweeper.Sweep(ctx).Removed).To(HaveLen(1))
		second := sweeper.Sweep(ctx)
		Expect(second.Removed).To(BeEmpty())
		Expect(second.Errors).To(BeEmpty())
	})

	It("deletes expired job records", func() {
		for _, id := range []string{"job_0000000000c1", "job_0000000000c2"} {
			_, err := s.Job().Create(ctx, model.Job{ID: id, VideoPath: "uploads/v.mp4", PresentationPath: "uploads/d.pdf"})
			Expect(err).To(BeNil())
		}
		Expect(gormDB.Model(&model.Job{}).Where("id = ?", "job_0000000000c1").Update("created_at", now.Add(-36*time.Hour)).Error).To(BeNil())
		Expect(gormDB.Model(&model.Job{}).Where("id = ?", "job_0000000000c2").Update("created_at", now.Add(-time.Hour)).Error).To(BeNil())

		result := newSweeper(objects).Sweep(ctx)
		Expect(result.JobsDeleted).To(BeEquivalentTo(1))

		_, err := s.Job().Get(ctx, "job_0000000000c1")
		Expect(err).To(MatchError(store.ErrRecordNotFound))
		_, err = s.Job().Get(ctx, "job_0000000000c2")
		Expect(err).To(BeNil())
	})

	It("reports failed deletions and keeps going", func() {
		put("uploads/20261017_120000/aaaa1111/locked.mp4", 48*time.Hour)
		put("uploads/20261017_120000/bbbb2222/free.mp4", 48*time.Hour)

		result := newSweeper(failingRemove{MemoryStore: objects, path: "uploads/20261017_120000/aaaa1111/locked.mp4"}).Sweep(ctx)
		Expect(result.Removed).To(Equal([]string{"uploads/20261017_120000/bbbb2222/free.mp4"}))
		Expect(result.Errors).To(HaveLen(1))
		Expect(result.Errors[0].Path).To(Equal("uploads/20261017_120000/aaaa1111/locked.mp4"))
	})

	It("stops running when the context ends", func() {
		put("uploads/20261017_120000/aaaa1111/old.mp4", 48*time.Hour)
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- newSweeper(objects).Run(runCtx)
		}()

		Eventually(func() bool { return exists("uploads/20261017_120000/aaaa1111/old.mp4") }).Should(BeFalse())
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
