package publish

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/qa"
	"github.com/chaptermaker/chaptermaker/internal/slides"
	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/subtitles"
	"github.com/chaptermaker/chaptermaker/pkg/log"
)

// Result keys.
const (
	KeyChapters   = "chapters"
	KeySubtitles  = "subtitles"
	KeyTranscript = "transcript"
	KeySlides     = "slides"
)

const (
	ChaptersFile   = "importChapters.csv"
	SubtitlesFile  = "subtitles.srt"
	TranscriptFile = "transcript.txt"
	SlidesDir      = "slides/"
)

var chaptersHeader = []string{"Time (s)", "Image name", "Description"}

// Artifacts is everything a finished job publishes.
type Artifacts struct {
	Chapters   []chapters.Chapter
	Cues       []subtitles.Cue
	Transcript string
	Deck       *slides.Deck
	QADetected bool
	// Subtitles is false when the job opted out of the subtitle track.
	Subtitles bool
}

// OutputDir is the prefix holding every artifact of a job.
func OutputDir(jobID string) string {
	return storage.OutputsPrefix + jobID + "/"
}

type Publisher struct {
	objects storage.ObjectStore
	logger  *log.StructuredLogger
}

func NewPublisher(objects storage.ObjectStore) *Publisher {
	return &Publisher{objects: objects, logger: log.NewDebugLogger("publisher")}
}

// Publish uploads the artifacts and returns the result map of artifact name to storage
// path. Uploads overwrite, so a retried job publishes the same paths again.
func (p *Publisher) Publish(ctx context.Context, jobID string, a Artifacts) (map[string]string, error) {
	dir := OutputDir(jobID)
	tracer := p.logger.WithContext(ctx).Operation("publish").WithString("job_id", jobID).Build()

	csvData, err := ChaptersCSV(a.Chapters)
	if err != nil {
		return nil, err
	}

	results := map[string]string{}
	if err := p.put(ctx, dir+ChaptersFile, csvData, "text/csv"); err != nil {
		return nil, err
	}
	results[KeyChapters] = dir + ChaptersFile

	if a.Subtitles {
		if err := p.put(ctx, dir+SubtitlesFile, []byte(subtitles.FormatSRT(a.Cues)), "application/x-subrip"); err != nil {
			return nil, err
		}
		results[KeySubtitles] = dir + SubtitlesFile
	}

	if err := p.put(ctx, dir+TranscriptFile, []byte(a.Transcript), "text/plain; charset=utf-8"); err != nil {
		return nil, err
	}
	results[KeyTranscript] = dir + TranscriptFile

	if a.Deck != nil {
		for _, img := range a.Deck.Images {
			if err := p.putFile(ctx, dir+SlidesDir+filepath.Base(img), img, "image/jpeg"); err != nil {
				return nil, err
			}
		}
	}
	if a.QADetected {
		placeholder, err := qa.Placeholder()
		if err != nil {
			return nil, fmt.Errorf("rendering q&a placeholder: %w", err)
		}
		if err := p.put(ctx, dir+SlidesDir+chapters.QAImage, placeholder, "image/jpeg"); err != nil {
			return nil, err
		}
	}
	results[KeySlides] = dir + SlidesDir

	tracer.Success().WithInt("artifacts", len(results)).Log()
	return results, nil
}

// ChaptersCSV renders the chapter import file.
func ChaptersCSV(cs []chapters.Chapter) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(chaptersHeader); err != nil {
		return nil, err
	}
	for _, c := range cs {
		if err := w.Write([]string{strconv.Itoa(c.Timestamp), c.ImageName(), c.Title}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (p *Publisher) put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := p.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return fmt.Errorf("uploading %s: %w", path.Base(key), err)
	}
	return nil
}

func (p *Publisher) putFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := p.objects.Put(ctx, key, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("uploading %s: %w", path.Base(key), err)
	}
	return nil
}
