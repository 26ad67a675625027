package store_test

import (
	"context"

	"github.com/chaptermaker/chaptermaker/internal/config"
	st "github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store).ToNot(BeNil())
		Expect(store.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM jobs;")
	})

	Context("transaction", func() {
		It("insert a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, model.Job{ID: "job_aaaaaaaaaaaa", VideoPath: "uploads/a/b/talk.mp4", PresentationPath: "uploads/a/c/deck.pdf"})
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())

			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rollback a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = store.Job().Create(ctx, model.Job{ID: "job_bbbbbbbbbbbb", VideoPath: "v", PresentationPath: "p"})
			Expect(err).To(BeNil())

			// visible inside the same transaction
			jobs, err := store.Job().List(ctx, st.NewJobQueryFilter(), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))

			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("joins an enclosing transaction", func() {
			outer, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())
			inner, err := store.NewTransactionContext(outer)
			Expect(err).To(BeNil())
			Expect(st.FromContext(inner)).To(BeIdenticalTo(st.FromContext(outer)))

			_, err = store.Job().Create(inner, model.Job{ID: "job_cccccccccccc", VideoPath: "v", PresentationPath: "p"})
			Expect(err).To(BeNil())

			done, err := st.Rollback(outer)
			Expect(err).To(BeNil())
			Expect(st.FromContext(done)).To(BeNil())

			// ending again through the stripped context is a no-op
			_, err = st.Commit(done)
			Expect(err).To(BeNil())

			count := 0
			Expect(gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})
	})
})
