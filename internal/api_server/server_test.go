package apiserver_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	apiserver "github.com/chaptermaker/chaptermaker/internal/api_server"
	"github.com/chaptermaker/chaptermaker/internal/config"
	handlers "github.com/chaptermaker/chaptermaker/internal/handlers/v1alpha1"
	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("api server", Ordered, func() {
	var (
		s      store.Store
		router http.Handler
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())

		objects := storage.NewMemoryStore()
		h := handlers.NewServiceHandler(
			service.NewJobService(s, objects, nil),
			service.NewUploadService(upload.NewBroker(objects, time.Minute)),
		)
		router = apiserver.New(cfg, h, nil).Router()
	})

	AfterAll(func() {
		s.Close()
	})

	It("serves health with a request id", func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("X-Request-Id")).ToNot(BeEmpty())
	})

	It("echoes the caller's request id", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job_000000000000", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Header().Get("X-Request-Id")).To(Equal("abc-123"))
		Expect(rec.Body.String()).To(ContainSubstring(`"requestId":"abc-123"`))
	})

	It("answers CORS preflight requests", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/videos/process", nil)
		req.Header.Set("Origin", "https://example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	It("serves the api behind a gateway prefix", func() {
		cfg := config.NewDefault()
		cfg.Service.GatewayPrefix = "/chaptermaker"
		objects := storage.NewMemoryStore()
		h := handlers.NewServiceHandler(
			service.NewJobService(s, objects, nil),
			service.NewUploadService(upload.NewBroker(objects, time.Minute)),
		)
		prefixed := apiserver.New(cfg, h, nil).Router()

		rec := httptest.NewRecorder()
		prefixed.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chaptermaker/api/v1/health", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("metrics server", func() {
	It("serves prometheus metrics until the context ends", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- apiserver.NewMetricServer(listener.Addr().String(), listener).Run(ctx)
		}()

		Eventually(func() (string, error) {
			resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			return string(body), err
		}).Should(ContainSubstring("chaptermaker_jobs_submitted_total"))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
