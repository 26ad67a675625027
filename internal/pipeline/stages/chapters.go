package stages

import (
	"context"
	"errors"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/openai"
	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/storage"
)

// ChapterGeneration runs before the slides are rendered, so it works from a cheap slide
// count. Slide numbers are fitted to the real deck by SlideExtraction.
type ChapterGeneration struct {
	objects   storage.ObjectStore
	generator ChapterGenerator
	extractor SlideExtractor
}

func (s *ChapterGeneration) Name() string    { return NameChapterGeneration }
func (s *ChapterGeneration) Checkpoint() int { return 40 }
func (s *ChapterGeneration) Message() string { return "Chapters generated" }

func (s *ChapterGeneration) Run(ctx context.Context, state *pipeline.State) error {
	if state.Transcript == nil {
		return pipeline.NewPermanentError("no transcript available", nil)
	}

	local, err := fetch(ctx, s.objects, state, state.PresentationPath, "presentation")
	if err != nil {
		return err
	}

	cs, err := s.generator.Generate(ctx, chapters.Input{
		Transcript:   state.Transcript,
		SlideCount:   s.extractor.Count(local),
		Instructions: state.Options.ChapterPrompt,
	})
	if err != nil {
		if errors.Is(err, chapters.ErrInvalidResponse) || errors.Is(err, openai.ErrInvalidResponseFormat) {
			return pipeline.NewTransientError("invalid chapter response", err)
		}
		return classifyService(err, "chapter generation")
	}
	state.Chapters = cs
	return nil
}
