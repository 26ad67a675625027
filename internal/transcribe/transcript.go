package transcribe

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrUndecodableMedia is returned when the source cannot be probed or has no usable audio.
var ErrUndecodableMedia = errors.New("undecodable media")

// ErrToolUnavailable is returned when ffprobe or ffmpeg cannot be run on this host. It
// says nothing about the media, so callers should retry elsewhere or later.
var ErrToolUnavailable = errors.New("media tool unavailable")

// Segment is a span of speech, in seconds from the start of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the answer of a single transcription call.
type Result struct {
	Text     string
	Language string
	Duration float64
	Segments []Segment
}

// API transcribes one audio file of at most 25 MB.
type API interface {
	Transcribe(ctx context.Context, audioPath, language, prompt string) (*Result, error)
}

// Transcript is the transcription of a whole media file. Segments are ordered by start
// and lie within [0, Duration].
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// assemble merges per-chunk results, shifting each chunk by its offset.
func assemble(chunks []chunk, results []*Result, duration float64, language string) *Transcript {
	t := &Transcript{Duration: duration, Language: language}

	for i, res := range results {
		if res == nil {
			continue
		}
		if t.Language == "" && res.Language != "" {
			t.Language = res.Language
		}
		offset := chunks[i].offset
		segments := res.Segments
		if len(segments) == 0 && strings.TrimSpace(res.Text) != "" {
			segments = []Segment{{Start: 0, End: chunks[i].length, Text: res.Text}}
		}
		for _, s := range segments {
			seg := Segment{
				Start: clamp(s.Start+offset, 0, duration),
				End:   clamp(s.End+offset, 0, duration),
				Text:  strings.TrimSpace(s.Text),
			}
			if seg.Text == "" || seg.End < seg.Start {
				continue
			}
			t.Segments = append(t.Segments, seg)
		}
	}

	sort.SliceStable(t.Segments, func(i, j int) bool { return t.Segments[i].Start < t.Segments[j].Start })

	texts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		texts = append(texts, s.Text)
	}
	t.Text = strings.Join(texts, " ")
	return t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
