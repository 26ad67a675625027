package chapters_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/transcribe"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeCompleter struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func talk(n int) *transcribe.Transcript {
	t := &transcribe.Transcript{Duration: float64(n * 10)}
	for i := 0; i < n; i++ {
		t.Segments = append(t.Segments, transcribe.Segment{
			Start: float64(i * 10), End: float64(i*10 + 10), Text: fmt.Sprintf("sentence number %d", i),
		})
	}
	return t
}

var _ = Describe("chapter generator", func() {
	It("parses and normalizes the model answer", func() {
		completer := &fakeCompleter{answer: `{"chapters":[
			{"timestamp_seconds":0,"slide_number":1,"title":"Intro","is_qa":false},
			{"timestamp_seconds":95.6,"slide_number":3.0,"title":"Results","is_qa":false},
			{"timestamp_seconds":170,"slide_number":9,"title":"Questions","is_qa":true}]}`}

		out, err := chapters.NewGenerator(completer).Generate(context.TODO(), chapters.Input{Transcript: talk(18), SlideCount: 6})
		Expect(err).To(BeNil())
		Expect(out).To(Equal([]chapters.Chapter{
			{Timestamp: 0, SlideNumber: 1, Title: "Intro"},
			{Timestamp: 96, SlideNumber: 3, Title: "Results"},
			{Timestamp: 170, SlideNumber: 6, Title: "Questions", IsQA: true},
		}))
		Expect(completer.prompts[0]).To(ContainSubstring("Total presentation slides: 6"))
		Expect(completer.prompts[0]).To(ContainSubstring("[01:30] sentence number 9"))
	})

	It("uses custom instructions", func() {
		completer := &fakeCompleter{answer: `{"chapters":[]}`}
		_, err := chapters.NewGenerator(completer).Generate(context.TODO(), chapters.Input{
			Transcript: talk(2), Instructions: "Only mark demos.",
		})
		Expect(err).To(BeNil())
		Expect(completer.prompts[0]).To(HavePrefix("Only mark demos."))
		Expect(completer.prompts[0]).To(ContainSubstring("number of slides is not known"))
	})

	It("rejects answers without a chapter list", func() {
		completer := &fakeCompleter{answer: `{"sections":[]}`}
		_, err := chapters.NewGenerator(completer).Generate(context.TODO(), chapters.Input{Transcript: talk(1)})
		Expect(errors.Is(err, chapters.ErrInvalidResponse)).To(BeTrue())
	})

	It("returns completion errors unchanged", func() {
		boom := errors.New("rate limited")
		_, err := chapters.NewGenerator(&fakeCompleter{err: boom}).Generate(context.TODO(), chapters.Input{Transcript: talk(1)})
		Expect(err).To(MatchError(boom))
	})

	It("keeps the transcript within the token budget across the whole talk", func() {
		completer := &fakeCompleter{answer: `{"chapters":[]}`}
		g := chapters.NewGenerator(completer, chapters.WithTokenCounter(wordCounter{}), chapters.WithTokenBudget(100))

		_, err := g.Generate(context.TODO(), chapters.Input{Transcript: talk(200)})
		Expect(err).To(BeNil())

		prompt := completer.prompts[0]
		transcript := prompt[strings.Index(prompt, "TRANSCRIPT:\n")+len("TRANSCRIPT:\n"):]
		Expect(wordCounter{}.CountTokens(transcript)).To(BeNumerically("<=", 100))
		Expect(transcript).To(ContainSubstring("sentence number 0"))
		Expect(transcript).To(ContainSubstring("sentence number 190"))
		Expect(transcript).ToNot(ContainSubstring("sentence number 1\n"))
	})
})
