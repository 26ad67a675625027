package stages

import (
	"context"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/publish"
)

// Publication is the only stage that produces results. The orchestrator stores them in
// the completion write.
type Publication struct {
	publisher Publisher
}

func (s *Publication) Name() string    { return NamePublication }
func (s *Publication) Checkpoint() int { return 100 }
func (s *Publication) Message() string { return "Results published" }

func (s *Publication) Run(ctx context.Context, state *pipeline.State) error {
	a := publish.Artifacts{
		Chapters:   state.Chapters,
		Cues:       state.Cues,
		Deck:       state.Deck,
		QADetected: state.QADetected,
		Subtitles:  state.Options.SubtitlesEnabled(),
	}
	if state.Transcript != nil {
		a.Transcript = state.Transcript.Text
	}

	results, err := s.publisher.Publish(ctx, state.JobID, a)
	if err != nil {
		return pipeline.NewTransientError("failed to publish artifacts", err)
	}
	state.Results = results
	return nil
}
