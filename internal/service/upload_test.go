package service_test

import (
	"context"
	"errors"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/service"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("upload service", func() {
	var srv *service.UploadService

	BeforeEach(func() {
		srv = service.NewUploadService(upload.NewBroker(storage.NewMemoryStore(), 15*time.Minute))
	})

	It("issues a ticket", func() {
		ticket, err := srv.RequestTicket(context.TODO(), upload.KindPresentation, "deck.pptx", "")
		Expect(err).To(BeNil())
		Expect(ticket.ResultingPath).To(HavePrefix("uploads/"))
		Expect(ticket.ResultingPath).To(HaveSuffix("/deck.pptx"))
	})

	It("maps unsupported files to a typed error", func() {
		_, err := srv.RequestTicket(context.TODO(), upload.KindMedia, "deck.pptx", "")
		var unsupported *service.ErrUnsupportedFileType
		Expect(errors.As(err, &unsupported)).To(BeTrue())
		Expect(errors.Is(err, upload.ErrUnsupportedFileType)).To(BeTrue())
	})

	It("requires a filename", func() {
		_, err := srv.RequestTicket(context.TODO(), upload.KindMedia, "", "")
		var invalid *service.ErrInvalidInput
		Expect(errors.As(err, &invalid)).To(BeTrue())
	})
})
