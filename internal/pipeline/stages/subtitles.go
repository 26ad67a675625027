package stages

import (
	"context"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/subtitles"
)

type SubtitleSynthesis struct {
	maxCue time.Duration
}

func (s *SubtitleSynthesis) Name() string    { return NameSubtitleSynthesis }
func (s *SubtitleSynthesis) Checkpoint() int { return 95 }
func (s *SubtitleSynthesis) Message() string { return "Subtitles generated" }

func (s *SubtitleSynthesis) Run(_ context.Context, state *pipeline.State) error {
	if !state.Options.SubtitlesEnabled() || state.Transcript == nil {
		state.Cues = nil
		return nil
	}
	state.Cues = subtitles.Build(state.Transcript.Segments, s.maxCue, state.Transcript.Duration)
	return nil
}
