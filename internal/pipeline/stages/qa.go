package stages

import (
	"context"

	"github.com/chaptermaker/chaptermaker/internal/pipeline"
	"github.com/chaptermaker/chaptermaker/internal/qa"
)

type QADetection struct {
	detector qa.Detector
}

func (s *QADetection) Name() string    { return NameQADetection }
func (s *QADetection) Checkpoint() int { return 80 }
func (s *QADetection) Message() string { return "Q&A detection completed" }

func (s *QADetection) Run(_ context.Context, state *pipeline.State) error {
	if !state.Options.QADetectionEnabled() {
		state.Chapters = qa.Clear(state.Chapters)
		state.QADetected = false
		return nil
	}
	detector := s.detector
	if detector == nil {
		detector = qa.NewKeywordDetector()
	}
	state.Chapters, state.QADetected = qa.Apply(detector, state.Chapters)
	return nil
}
