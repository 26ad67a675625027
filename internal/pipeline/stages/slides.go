package stages

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/slides"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/upload"
)

type SlideExtraction struct {
	objects   storage.ObjectStore
	extractor SlideExtractor
}

func (s *SlideExtraction) Name() string    { return NameSlideExtraction }
func (s *SlideExtraction) Checkpoint() int { return 60 }
func (s *SlideExtraction) Message() string { return "Slides extracted" }

func (s *SlideExtraction) Preflight(state *pipeline.State) error {
	if err := s.extractor.Check(state.PresentationPath); err != nil {
		return slideError(err, state.PresentationPath)
	}
	return nil
}

func (s *SlideExtraction) Run(ctx context.Context, state *pipeline.State) error {
	local, err := fetch(ctx, s.objects, state, state.PresentationPath, "presentation")
	if err != nil {
		return err
	}

	deck, err := s.extractor.Extract(ctx, local, filepath.Join(state.WorkDir, "slides"))
	if err != nil {
		return slideError(err, state.PresentationPath)
	}
	state.Deck = deck
	state.Chapters = chapters.FitToSlides(state.Chapters, deck.Count())
	return nil
}

func slideError(err error, path string) error {
	switch {
	case errors.Is(err, slides.ErrUnsupportedFormat):
		return pipeline.NewPermanentError(fmt.Sprintf("unsupported presentation format %q", upload.Ext(path)), err)
	case errors.Is(err, slides.ErrConverterUnavailable):
		return pipeline.NewPermanentError("no converter available for this presentation format", err)
	case errors.Is(err, slides.ErrUnreadable):
		return pipeline.NewPermanentError("unreadable presentation", err)
	default:
		return pipeline.NewTransientError("failed to render slides", err)
	}
}
