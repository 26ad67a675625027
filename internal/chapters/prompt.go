package chapters

import (
	"fmt"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/transcribe"
)

const defaultInstructions = `Analyze this presentation transcript and create chapter markers.

INSTRUCTIONS:
1. Identify major topic transitions in the presentation.
2. Create chapter markers that align with slide changes when possible.
3. Give each chapter a clear, descriptive title.
4. Detect Q&A sections, for example phrases like "questions", "Q&A" or "let me answer", and set is_qa to true for them.
5. Timestamps are whole seconds from the start and strictly increasing.
6. Try to have one chapter per slide, but combine slides that are discussed very briefly.

Answer with a JSON object of the form:
{"chapters":[{"timestamp_seconds":0,"slide_number":1,"title":"Introduction","is_qa":false}]}`

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// Input is what the chapter generator knows about a talk.
type Input struct {
	Transcript *transcribe.Transcript
	// SlideCount is 0 when the deck size is not known.
	SlideCount int
	// Instructions replace the default instructions when set.
	Instructions string
}

// BuildPrompt renders the transcript as timestamped lines. When the lines exceed budget
// tokens, evenly spaced lines are kept so the whole talk stays represented.
func BuildPrompt(in Input, counter TokenCounter, budget int) string {
	instructions := strings.TrimSpace(in.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}

	var lines []string
	var duration float64
	if in.Transcript != nil {
		duration = in.Transcript.Duration
		for _, s := range in.Transcript.Segments {
			lines = append(lines, fmt.Sprintf("[%s] %s", clock(s.Start), s.Text))
		}
		if len(lines) == 0 && in.Transcript.Text != "" {
			lines = append(lines, in.Transcript.Text)
		}
	}
	lines = fitLines(lines, counter, budget)

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nCONTEXT:\n")
	if in.SlideCount > 0 {
		fmt.Fprintf(&b, "- Total presentation slides: %d, numbered from 1 to %d\n", in.SlideCount, in.SlideCount)
	} else {
		b.WriteString("- The number of slides is not known; number slides from 1 in order of appearance\n")
	}
	fmt.Fprintf(&b, "- Media duration: %.0f seconds\n", duration)
	b.WriteString("\nTRANSCRIPT:\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

func fitLines(lines []string, counter TokenCounter, budget int) []string {
	if budget <= 0 || counter == nil || len(lines) == 0 {
		return lines
	}

	costs := make([]int, len(lines))
	total := 0
	for i, l := range lines {
		costs[i] = counter.CountTokens(l) + 1
		total += costs[i]
	}
	if total <= budget {
		return lines
	}

	step := float64(total) / float64(budget)
	kept := make([]string, 0, int(float64(len(lines))/step)+1)
	used := 0
	next := 0.0
	for i, l := range lines {
		if float64(i) < next {
			continue
		}
		if used+costs[i] > budget {
			continue
		}
		kept = append(kept, l)
		used += costs[i]
		next = float64(i) + step
	}
	return kept
}

func clock(seconds float64) string {
	s := int(seconds)
	if s < 0 {
		s = 0
	}
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
