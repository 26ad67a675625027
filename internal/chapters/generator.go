package chapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/chaptermaker/chaptermaker/pkg/log"
)

// ErrInvalidResponse is returned when the model answer is JSON but not a chapter list.
var ErrInvalidResponse = errors.New("invalid chapter response")

const DefaultTokenBudget = 12000

// Completer returns a JSON object produced by a chat model.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	completer Completer
	counter   TokenCounter
	budget    int
	logger    *log.StructuredLogger
}

type Option func(g *Generator)

func WithTokenCounter(c TokenCounter) Option {
	return func(g *Generator) { g.counter = c }
}

func WithTokenBudget(n int) Option {
	return func(g *Generator) { g.budget = n }
}

func NewGenerator(completer Completer, opts ...Option) *Generator {
	g := &Generator{
		completer: completer,
		budget:    DefaultTokenBudget,
		logger:    log.NewDebugLogger("chapter_generator"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type response struct {
	Chapters []struct {
		Timestamp   float64 `json:"timestamp_seconds"`
		SlideNumber float64 `json:"slide_number"`
		Title       string  `json:"title"`
		IsQA        bool    `json:"is_qa"`
	} `json:"chapters"`
}

// Generate asks the model for chapters and normalizes its answer.
func (g *Generator) Generate(ctx context.Context, in Input) ([]Chapter, error) {
	prompt := BuildPrompt(in, g.counter, g.budget)
	tracer := g.logger.WithContext(ctx).Operation("generate_chapters").
		WithInt("slide_count", in.SlideCount).
		Build()

	raw, err := g.completer.CompleteJSON(ctx, prompt)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	chapters, err := Parse(raw)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	var duration float64
	if in.Transcript != nil {
		duration = in.Transcript.Duration
	}
	chapters = Normalize(chapters, duration, in.SlideCount)
	tracer.Success().WithInt("chapters", len(chapters)).Log()
	return chapters, nil
}

// Parse decodes the model answer. Numbers are rounded since models do not always answer
// with integers.
func Parse(raw string) ([]Chapter, error) {
	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Chapters == nil {
		return nil, fmt.Errorf("%w: missing chapters", ErrInvalidResponse)
	}

	chapters := make([]Chapter, 0, len(resp.Chapters))
	for _, c := range resp.Chapters {
		chapters = append(chapters, Chapter{
			Timestamp:   int(math.Round(c.Timestamp)),
			SlideNumber: int(math.Round(c.SlideNumber)),
			Title:       c.Title,
			IsQA:        c.IsQA,
		})
	}
	return chapters, nil
}
