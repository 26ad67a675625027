package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/openai"
	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/publish"
	"github.com/chaptermaker/chaptermaker/internal/qa"
	"github.com/chaptermaker/chaptermaker/internal/slides"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/transcribe"
	"github.com/chaptermaker/chaptermaker/internal/upload"
)

// Stage names, as they appear in failure messages.
const (
	NameTranscription     = "transcription"
	NameChapterGeneration = "chapter generation"
	NameSlideExtraction   = "slide extraction"
	NameQADetection       = "qa detection"
	NameSubtitleSynthesis = "subtitle synthesis"
	NamePublication       = "publication"
)

// Transcriber is implemented by *transcribe.Transcriber.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, language, workDir string) (*transcribe.Transcript, error)
}

// ChapterGenerator is implemented by *chapters.Generator.
type ChapterGenerator interface {
	Generate(ctx context.Context, in chapters.Input) ([]chapters.Chapter, error)
}

// SlideExtractor is implemented by *slides.Extractor.
type SlideExtractor interface {
	Check(path string) error
	Count(path string) int
	Extract(ctx context.Context, path, outDir string) (*slides.Deck, error)
}

// Publisher is implemented by *publish.Publisher.
type Publisher interface {
	Publish(ctx context.Context, jobID string, a publish.Artifacts) (map[string]string, error)
}

// Deps are the collaborators of the standard pipeline.
type Deps struct {
	Objects     storage.ObjectStore
	Transcriber Transcriber
	Generator   ChapterGenerator
	Extractor   SlideExtractor
	Detector    qa.Detector
	Publisher   Publisher
	// MaxCue bounds the display time of a subtitle. Zero means the default.
	MaxCue time.Duration
}

// New returns the six stages in execution order.
func New(d Deps) []pipeline.Stage {
	return []pipeline.Stage{
		&Transcription{objects: d.Objects, transcriber: d.Transcriber},
		&ChapterGeneration{objects: d.Objects, generator: d.Generator, extractor: d.Extractor},
		&SlideExtraction{objects: d.Objects, extractor: d.Extractor},
		&QADetection{detector: d.Detector},
		&SubtitleSynthesis{maxCue: d.MaxCue},
		&Publication{publisher: d.Publisher},
	}
}

// fetch downloads a source object into the work directory once per run.
func fetch(ctx context.Context, objects storage.ObjectStore, state *pipeline.State, remote, name string) (string, error) {
	local := filepath.Join(state.WorkDir, "source-"+name+upload.Ext(remote))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := objects.Download(ctx, remote, local); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", pipeline.NewPermanentError(fmt.Sprintf("source %s not found", name), err)
		}
		return "", pipeline.NewTransientError(fmt.Sprintf("failed to download source %s", name), err)
	}
	return local, nil
}

// classifyService maps the errors of the model API to pipeline errors.
func classifyService(err error, what string) error {
	switch {
	case errors.Is(err, openai.ErrRejected):
		return pipeline.NewPermanentError(what+" request rejected", err)
	case errors.Is(err, openai.ErrRateLimited):
		return pipeline.NewTransientError(what+" rate limited", err)
	case errors.Is(err, context.DeadlineExceeded):
		return pipeline.NewTransientError(what+" timed out", err)
	default:
		return pipeline.NewTransientError(what+" service unavailable", err)
	}
}
