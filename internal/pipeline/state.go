package pipeline

import (
	"time"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/slides"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/chaptermaker/chaptermaker/internal/subtitles"
	"github.com/chaptermaker/chaptermaker/internal/transcribe"
)

// State is threaded through the stages of one job run. Each stage reads what earlier
// stages produced and adds its own output.
type State struct {
	JobID            string
	VideoPath        string
	PresentationPath string
	Options          model.JobOptions
	WorkDir          string
	StartedAt        time.Time

	Transcript *transcribe.Transcript
	Chapters   []chapters.Chapter
	Deck       *slides.Deck
	QADetected bool
	Cues       []subtitles.Cue
	Results    map[string]string
}

func NewState(job *model.Job, workDir string) *State {
	return &State{
		JobID:            job.ID,
		VideoPath:        job.VideoPath,
		PresentationPath: job.PresentationPath,
		Options:          job.Options.Data(),
		WorkDir:          workDir,
		StartedAt:        time.Now(),
	}
}

// Statistics summarises a finished run.
func (s *State) Statistics() model.JobStatistics {
	stats := model.JobStatistics{
		ChaptersCount: len(s.Chapters),
		SubtitleCues:  len(s.Cues),
		QADetected:    s.QADetected,
	}
	if !s.StartedAt.IsZero() {
		stats.ProcessingSeconds = time.Since(s.StartedAt).Seconds()
	}
	if s.Transcript != nil {
		stats.DurationSeconds = s.Transcript.Duration
		stats.TranscriptionLength = len(s.Transcript.Text)
		stats.Language = s.Transcript.Language
	}
	if s.Deck != nil {
		stats.SlidesExtracted = len(s.Deck.Images)
		stats.DegradedSlides = s.Deck.Degraded
	}
	return stats
}
