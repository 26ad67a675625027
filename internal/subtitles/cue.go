package subtitles

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/chaptermaker/chaptermaker/internal/transcribe"
)

const DefaultMaxCueDuration = 7 * time.Second

var sentenceEnd = regexp.MustCompile(`[.!?…]+["')\]]*\s+`)

// Cue is one subtitle, timed in seconds.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// Build turns transcript segments into cues no longer than maxCue where the text allows
// it. Long segments are split at sentence boundaries first, then at word boundaries,
// and their time is shared in proportion to text length. Cues never overlap and lie
// within [0, duration].
func Build(segments []transcribe.Segment, maxCue time.Duration, duration float64) []Cue {
	limit := maxCue.Seconds()
	if limit <= 0 {
		limit = DefaultMaxCueDuration.Seconds()
	}

	var cues []Cue
	for _, s := range segments {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		start, end := clamp(s.Start, duration), clamp(s.End, duration)
		if end <= start {
			continue
		}
		cues = append(cues, split(Cue{Start: start, End: end, Text: text}, limit)...)
	}

	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })

	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if n := len(out); n > 0 && c.Start < out[n-1].End {
			prev := &out[n-1]
			if c.Start > prev.Start {
				prev.End = c.Start
			} else {
				c.Start = prev.End
			}
		}
		if c.End <= c.Start {
			if n := len(out); n > 0 {
				out[n-1].Text += " " + c.Text
			}
			continue
		}
		out = append(out, c)
	}
	for i := range out {
		out[i].Index = i + 1
	}
	return out
}

func split(c Cue, limit float64) []Cue {
	if c.Duration() <= limit {
		return []Cue{c}
	}

	total := float64(runeLen(c.Text))
	rate := c.Duration() / total

	var pieces []string
	for _, sentence := range sentences(c.Text) {
		if float64(runeLen(sentence))*rate <= limit {
			pieces = append(pieces, sentence)
			continue
		}
		pieces = append(pieces, pack(strings.Fields(sentence), rate, limit)...)
	}
	pieces = merge(pieces, rate, limit)

	var weight float64
	for _, p := range pieces {
		weight += float64(runeLen(p))
	}

	out := make([]Cue, 0, len(pieces))
	t := c.Start
	for i, p := range pieces {
		end := t + c.Duration()*float64(runeLen(p))/weight
		if i == len(pieces)-1 {
			end = c.End
		}
		out = append(out, Cue{Start: t, End: end, Text: p})
		t = end
	}
	return out
}

func sentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// pack groups words into pieces that fit the limit. A single word longer than the limit
// becomes its own piece.
func pack(words []string, rate, limit float64) []string {
	var (
		out []string
		cur []string
	)
	for _, w := range words {
		candidate := strings.Join(append(cur, w), " ")
		if len(cur) > 0 && float64(runeLen(candidate))*rate > limit {
			out = append(out, strings.Join(cur, " "))
			cur = nil
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

// merge joins consecutive short pieces while they still fit the limit.
func merge(pieces []string, rate, limit float64) []string {
	var out []string
	for _, p := range pieces {
		if n := len(out); n > 0 {
			joined := out[n-1] + " " + p
			if float64(runeLen(joined))*rate <= limit {
				out[n-1] = joined
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// Timestamp formats seconds as HH:MM:SS,mmm.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// WriteSRT writes cues in SubRip format.
func WriteSRT(w io.Writer, cues []Cue) error {
	for i, c := range cues {
		index := c.Index
		if index == 0 {
			index = i + 1
		}
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", index, Timestamp(c.Start), Timestamp(c.End), c.Text); err != nil {
			return err
		}
	}
	return nil
}

// FormatSRT returns cues in SubRip format.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	_ = WriteSRT(&b, cues)
	return b.String()
}

func clamp(v, duration float64) float64 {
	if v < 0 {
		return 0
	}
	if duration > 0 && v > duration {
		return duration
	}
	return v
}

func runeLen(s string) int {
	return len([]rune(s))
}
