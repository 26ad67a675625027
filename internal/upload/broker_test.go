package upload_test

import (
	"context"
	"regexp"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("upload broker", func() {
	var (
		objects *storage.MemoryStore
		broker  *upload.Broker
		at      = time.Date(2026, 10, 19, 13, 4, 5, 0, time.UTC)
	)

	BeforeEach(func() {
		objects = storage.NewMemoryStore()
		broker = upload.NewBroker(objects, 15*time.Minute).WithClock(func() time.Time { return at })
	})

	Context("media tickets", func() {
		It("issues a ticket for a video", func() {
			ticket, err := broker.RequestTicket(context.TODO(), upload.KindMedia, "My Talk.mp4", "")
			Expect(err).To(BeNil())
			Expect(ticket.ResultingPath).To(MatchRegexp(`^uploads/20261019_130405/[0-9a-f]{8}/My_Talk\.mp4$`))
			Expect(ticket.ContentType).To(Equal("video/mp4"))
			Expect(ticket.Expiry).To(Equal(15 * time.Minute))
			Expect(ticket.ExpiresAt).To(Equal(at.Add(15 * time.Minute)))
			Expect(ticket.WriteURL).To(ContainSubstring("method=PUT"))
		})

		It("keeps the declared content type", func() {
			ticket, err := broker.RequestTicket(context.TODO(), upload.KindMedia, "podcast.m4a", "audio/x-m4a")
			Expect(err).To(BeNil())
			Expect(ticket.ContentType).To(Equal("audio/x-m4a"))
		})

		It("rejects a presentation sent as media", func() {
			_, err := broker.RequestTicket(context.TODO(), upload.KindMedia, "slides.pdf", "")
			Expect(err).To(MatchError(upload.ErrUnsupportedFileType))
		})

		It("does not write anything to storage", func() {
			_, err := broker.RequestTicket(context.TODO(), upload.KindMedia, "talk.webm", "")
			Expect(err).To(BeNil())
			objs, _ := objects.List(context.TODO(), "")
			Expect(objs).To(BeEmpty())
		})
	})

	Context("presentation tickets", func() {
		DescribeTable("accepted extensions",
			func(name string) {
				ticket, err := broker.RequestTicket(context.TODO(), upload.KindPresentation, name, "")
				Expect(err).To(BeNil())
				Expect(ticket.ResultingPath).To(HaveSuffix(name))
			},
			Entry("pptx", "deck.pptx"),
			Entry("ppt", "deck.ppt"),
			Entry("pdf", "deck.PDF"),
		)

		DescribeTable("rejected extensions",
			func(name string) {
				_, err := broker.RequestTicket(context.TODO(), upload.KindPresentation, name, "")
				Expect(err).To(MatchError(upload.ErrUnsupportedFileType))
			},
			Entry("keynote", "deck.key"),
			Entry("no extension", "deck"),
			Entry("video", "talk.mp4"),
		)
	})

	It("uses a distinct path per ticket", func() {
		a, _ := broker.RequestTicket(context.TODO(), upload.KindMedia, "talk.mp4", "")
		b, _ := broker.RequestTicket(context.TODO(), upload.KindMedia, "talk.mp4", "")
		Expect(a.ResultingPath).ToNot(Equal(b.ResultingPath))
	})
})

var _ = Describe("filenames", func() {
	DescribeTable("sanitizing",
		func(in, out string) {
			Expect(upload.SanitizeFilename(in)).To(Equal(out))
		},
		Entry("plain", "talk.mp4", "talk.mp4"),
		Entry("spaces", "my talk (final).mp4", "my_talk_final_.mp4"),
		Entry("path traversal", "../../etc/passwd.pdf", "passwd.pdf"),
		Entry("windows path", `C:\Users\me\deck.pptx`, "deck.pptx"),
		Entry("empty", "...", "file"),
	)

	It("classifies extensions case-insensitively", func() {
		Expect(upload.IsMedia("TALK.MOV")).To(BeTrue())
		Expect(upload.IsMedia("song.flac")).To(BeTrue())
		Expect(upload.IsPresentation("Deck.PPTX")).To(BeTrue())
		Expect(upload.IsPresentation("notes.txt")).To(BeFalse())
		Expect(regexp.MustCompile(`^\.pdf$`).MatchString(upload.Ext("a.PDF"))).To(BeTrue())
	})
})
