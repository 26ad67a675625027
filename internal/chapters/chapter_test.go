package chapters_test

import (
	"fmt"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("chapter normalization", func() {
	It("sorts, clamps and drops duplicates and empty titles", func() {
		in := []chapters.Chapter{
			{Timestamp: 300, SlideNumber: 4, Title: "Architecture"},
			{Timestamp: 0, SlideNumber: 1, Title: "Welcome"},
			{Timestamp: 120, SlideNumber: 2, Title: "  "},
			{Timestamp: 300, SlideNumber: 5, Title: "Duplicate"},
			{Timestamp: 9000, SlideNumber: 40, Title: "Wrap up"},
			{Timestamp: -5, SlideNumber: 0, Title: "Before start"},
		}

		out := chapters.Normalize(in, 1800.7, 12)

		Expect(out).To(Equal([]chapters.Chapter{
			{Timestamp: 0, SlideNumber: 1, Title: "Welcome"},
			{Timestamp: 300, SlideNumber: 4, Title: "Architecture"},
			{Timestamp: 1800, SlideNumber: 12, Title: "Wrap up"},
		}))
	})

	It("produces an introduction when nothing usable came back", func() {
		out := chapters.Normalize(nil, 60, 3)
		Expect(out).To(Equal([]chapters.Chapter{{Timestamp: 0, SlideNumber: 1, Title: chapters.IntroductionName}}))
	})

	It("starts with a chapter at zero", func() {
		out := chapters.Normalize([]chapters.Chapter{{Timestamp: 42, SlideNumber: 2, Title: "Agenda"}}, 600, 0)
		Expect(out).To(HaveLen(2))
		Expect(out[0].Timestamp).To(Equal(0))
		Expect(out[1].Title).To(Equal("Agenda"))
	})

	It("keeps timestamps strictly increasing", func() {
		in := []chapters.Chapter{
			{Timestamp: 10, Title: "a"}, {Timestamp: 10, Title: "b"}, {Timestamp: 5, Title: "c"}, {Timestamp: 0, Title: "d"},
		}
		out := chapters.Normalize(in, 100, 0)
		for i := 1; i < len(out); i++ {
			Expect(out[i].Timestamp).To(BeNumerically(">", out[i-1].Timestamp))
		}
	})

	It("re-fits slide numbers once the deck is known", func() {
		out := chapters.FitToSlides([]chapters.Chapter{{SlideNumber: 15}, {SlideNumber: -1}, {SlideNumber: 3}}, 8)
		Expect(out[0].SlideNumber).To(Equal(8))
		Expect(out[1].SlideNumber).To(Equal(1))
		Expect(out[2].SlideNumber).To(Equal(3))
	})

	It("never produces more chapters than slides", func() {
		var in []chapters.Chapter
		for i := 0; i < 30; i++ {
			in = append(in, chapters.Chapter{Timestamp: i * 20, SlideNumber: i + 1, Title: fmt.Sprintf("Part %d", i)})
		}
		in[29].Title = "Questions"
		in[29].IsQA = true

		out := chapters.Normalize(in, 600, 12)

		Expect(len(out)).To(BeNumerically("<=", 12))
		Expect(out[0].Timestamp).To(Equal(0))
		Expect(out[len(out)-1].Title).To(Equal("Questions"))
		Expect(out[len(out)-1].IsQA).To(BeTrue())
		for i, c := range out {
			Expect(c.SlideNumber).To(BeNumerically("<=", 12))
			if i > 0 {
				Expect(c.Timestamp).To(BeNumerically(">", out[i-1].Timestamp))
			}
		}
	})

	It("merges chapters that show the same slide before thinning", func() {
		in := []chapters.Chapter{
			{Timestamp: 0, SlideNumber: 1, Title: "Welcome"},
			{Timestamp: 30, SlideNumber: 1, Title: "About me"},
			{Timestamp: 60, SlideNumber: 2, Title: "Agenda"},
			{Timestamp: 90, SlideNumber: 9, Title: "Demo"},
			{Timestamp: 120, SlideNumber: 5, Title: "Results"},
		}

		out := chapters.FitToSlides(in, 3)

		Expect(out).To(Equal([]chapters.Chapter{
			{Timestamp: 0, SlideNumber: 1, Title: "Welcome"},
			{Timestamp: 60, SlideNumber: 2, Title: "Agenda"},
			{Timestamp: 90, SlideNumber: 3, Title: "Demo"},
		}))
	})

	It("leaves chapters alone while the deck is unknown", func() {
		in := []chapters.Chapter{{SlideNumber: 1, Title: "a"}, {Timestamp: 1, SlideNumber: 1, Title: "b"}}
		Expect(chapters.FitToSlides(in, 0)).To(HaveLen(2))
	})

	It("names images after slides or the Q&A placeholder", func() {
		Expect(chapters.Chapter{SlideNumber: 3}.ImageName()).To(Equal("03.jpg"))
		Expect(chapters.Chapter{SlideNumber: 12}.ImageName()).To(Equal("12.jpg"))
		Expect(chapters.Chapter{SlideNumber: 12, IsQA: true}.ImageName()).To(Equal("qa.jpg"))
	})
})
