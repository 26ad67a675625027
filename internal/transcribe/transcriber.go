package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/tools"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	"github.com/chaptermaker/chaptermaker/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxUploadBytes is the largest file the transcription endpoint accepts.
	MaxUploadBytes = 25 << 20
	// ChunkThreshold is the duration above which audio is split before transcription.
	ChunkThreshold = 15 * time.Minute
	ChunkLength    = 10 * time.Minute
	// ChunkConcurrency bounds the number of chunks transcribed at once.
	ChunkConcurrency = 4

	DefaultLanguage = "en"

	basePrompt = "This audio contains a professional presentation with technical terms, proper nouns, and company names. Please maintain proper punctuation."
)

type chunk struct {
	path   string
	offset float64
	length float64
}

type Transcriber struct {
	api       API
	ffmpeg    string
	ffprobe   string
	run       tools.CommandRunner
	available func(name string) bool
	logger    *log.StructuredLogger
}

type Option func(t *Transcriber)

func WithFFmpeg(path string) Option {
	return func(t *Transcriber) { t.ffmpeg = path }
}

func WithFFprobe(path string) Option {
	return func(t *Transcriber) { t.ffprobe = path }
}

// WithCommandRunner replaces the host command runner and tool lookup, mostly for tests.
func WithCommandRunner(r tools.CommandRunner, available func(name string) bool) Option {
	return func(t *Transcriber) {
		t.run = r
		t.available = available
	}
}

func NewTranscriber(api API, opts ...Option) *Transcriber {
	t := &Transcriber{
		api:       api,
		ffmpeg:    "ffmpeg",
		ffprobe:   "ffprobe",
		run:       tools.ExecRunner,
		available: tools.Available,
		logger:    log.NewDebugLogger("transcriber"),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe turns a local audio or video file into a transcript. Scratch files are
// written under workDir.
func (t *Transcriber) Transcribe(ctx context.Context, mediaPath, language, workDir string) (*Transcript, error) {
	if language == "" {
		language = DefaultLanguage
	}
	tracer := t.logger.WithContext(ctx).Operation("transcribe").
		WithString("media", filepath.Base(mediaPath)).
		WithString("language", language).
		Build()

	duration, err := t.Probe(ctx, mediaPath)
	if err != nil {
		return nil, err
	}
	tracer.Step("probed").WithParam("duration", duration).Log()

	audio, err := t.prepareAudio(ctx, mediaPath, workDir)
	if err != nil {
		return nil, err
	}

	chunks, err := t.split(ctx, audio, duration, workDir)
	if err != nil {
		return nil, err
	}
	tracer.Step("split").WithInt("chunks", len(chunks)).Log()

	results := make([]*Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ChunkConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			res, err := t.api.Transcribe(gctx, c.path, language, basePrompt)
			if err != nil {
				return fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	transcript := assemble(chunks, results, duration, "")
	if transcript.Language == "" {
		transcript.Language = language
	}
	tracer.Success().WithInt("segments", len(transcript.Segments)).Log()
	return transcript, nil
}

// Probe returns the media duration in seconds.
func (t *Transcriber) Probe(ctx context.Context, mediaPath string) (float64, error) {
	if !t.available(t.ffprobe) {
		return 0, fmt.Errorf("%w: %s not found", ErrToolUnavailable, t.ffprobe)
	}
	out, err := t.run(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if notRunnable(err) {
			return 0, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrUndecodableMedia, err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, fmt.Errorf("%w: no duration reported", ErrUndecodableMedia)
	}
	return duration, nil
}

// prepareAudio extracts the audio track of videos and recompresses audio files that are
// too large to upload.
func (t *Transcriber) prepareAudio(ctx context.Context, mediaPath, workDir string) (string, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return "", err
	}
	class, _ := upload.Classify(mediaPath)
	if class == upload.ClassAudio && info.Size() <= MaxUploadBytes {
		return mediaPath, nil
	}

	if !t.available(t.ffmpeg) {
		return "", fmt.Errorf("%w: %s not found", ErrToolUnavailable, t.ffmpeg)
	}
	dest := filepath.Join(workDir, "audio.mp3")
	if _, err := t.run(ctx, t.ffmpeg,
		"-i", mediaPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "64k",
		"-y",
		dest,
	); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if notRunnable(err) {
			return "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		return "", fmt.Errorf("%w: audio extraction failed: %v", ErrUndecodableMedia, err)
	}
	return dest, nil
}

func (t *Transcriber) split(ctx context.Context, audio string, duration float64, workDir string) ([]chunk, error) {
	if duration <= ChunkThreshold.Seconds() {
		return []chunk{{path: audio, offset: 0, length: duration}}, nil
	}

	dir := filepath.Join(workDir, "chunks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	step := ChunkLength.Seconds()
	var chunks []chunk
	for i := 0; float64(i)*step < duration; i++ {
		offset := float64(i) * step
		length := math.Min(step, duration-offset)
		path := filepath.Join(dir, fmt.Sprintf("chunk_%03d.mp3", i))
		if _, err := t.run(ctx, t.ffmpeg,
			"-i", audio,
			"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
			"-t", strconv.FormatFloat(step, 'f', 3, 64),
			"-ac", "1",
			"-ar", "16000",
			"-b:a", "64k",
			"-y",
			path,
		); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("splitting audio at %.0fs: %w", offset, err)
		}
		chunks = append(chunks, chunk{path: path, offset: offset, length: length})
	}
	if len(chunks) == 0 {
		return nil, errors.New("splitting audio produced no chunks")
	}
	return chunks, nil
}

// notRunnable reports whether err means the tool itself could not be started, as
// opposed to the tool rejecting the input.
func notRunnable(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
