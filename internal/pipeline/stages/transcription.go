package stages

import (
	"context"
	"errors"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/transcribe"
	"github.com/chaptermaker/chaptermaker/internal/upload"
)

type Transcription struct {
	objects     storage.ObjectStore
	transcriber Transcriber
}

func (s *Transcription) Name() string    { return NameTranscription }
func (s *Transcription) Checkpoint() int { return 15 }
func (s *Transcription) Message() string { return "Transcription completed" }

func (s *Transcription) Preflight(state *pipeline.State) error {
	if !upload.IsMedia(state.VideoPath) {
		return pipeline.NewPermanentError("unsupported media type "+upload.Ext(state.VideoPath), nil)
	}
	return nil
}

func (s *Transcription) Run(ctx context.Context, state *pipeline.State) error {
	local, err := fetch(ctx, s.objects, state, state.VideoPath, "media")
	if err != nil {
		return err
	}

	transcript, err := s.transcriber.Transcribe(ctx, local, state.Options.Language, state.WorkDir)
	if err != nil {
		switch {
		case errors.Is(err, transcribe.ErrToolUnavailable):
			return pipeline.NewTransientError("media tools unavailable", err)
		case errors.Is(err, transcribe.ErrUndecodableMedia):
			return pipeline.NewPermanentError("undecodable media", err)
		}
		return classifyService(err, "transcription")
	}
	state.Transcript = transcript
	return nil
}
