package chapters

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	QAImage          = "qa.jpg"
	IntroductionName = "Introduction"
)

// Chapter marks the start of a section of the talk.
type Chapter struct {
	Timestamp   int    `json:"timestamp_seconds"`
	SlideNumber int    `json:"slide_number"`
	Title       string `json:"title"`
	IsQA        bool   `json:"is_qa"`
}

// ImageName is the slide image shown for the chapter.
func (c Chapter) ImageName() string {
	if c.IsQA {
		return QAImage
	}
	return SlideImageName(c.SlideNumber)
}

// SlideImageName is the file name of the n-th slide, counted from 1.
func SlideImageName(n int) string {
	return fmt.Sprintf("%02d.jpg", n)
}

// Normalize returns chapters with non-empty titles, timestamps strictly increasing within
// [0, duration] and slide numbers within [1, slideCount]. A slideCount of 0 means the
// deck size is not known yet and only the lower bound is applied. The result always
// starts with a chapter at 0.
func Normalize(chapters []Chapter, duration float64, slideCount int) []Chapter {
	maxTs := math.MaxInt32
	if duration > 0 {
		maxTs = int(math.Floor(duration))
	}

	out := make([]Chapter, 0, len(chapters))
	for _, c := range chapters {
		c.Title = strings.Join(strings.Fields(c.Title), " ")
		if c.Title == "" {
			continue
		}
		c.Timestamp = clampInt(c.Timestamp, 0, maxTs)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	deduped := out[:0]
	for i, c := range out {
		if i > 0 && c.Timestamp == deduped[len(deduped)-1].Timestamp {
			continue
		}
		deduped = append(deduped, c)
	}
	out = deduped

	if len(out) == 0 || out[0].Timestamp > 0 {
		out = append([]Chapter{{Timestamp: 0, SlideNumber: 1, Title: IntroductionName}}, out...)
	}
	return FitToSlides(out, slideCount)
}

// FitToSlides clamps slide numbers against the real deck size and keeps at most
// slideCount chapters. Over the limit, consecutive chapters showing the same slide are
// merged into the first of them; if that is not enough, the opening chapter, the Q&A
// chapters and the closing chapter are kept and the rest is thinned out evenly.
func FitToSlides(chapters []Chapter, slideCount int) []Chapter {
	for i := range chapters {
		if chapters[i].SlideNumber < 1 {
			chapters[i].SlideNumber = 1
		}
		if slideCount > 0 && chapters[i].SlideNumber > slideCount {
			chapters[i].SlideNumber = slideCount
		}
	}
	if slideCount <= 0 || len(chapters) <= slideCount {
		return chapters
	}

	merged := make([]Chapter, 0, len(chapters))
	for _, c := range chapters {
		if n := len(merged); n > 0 && !c.IsQA && !merged[n-1].IsQA && merged[n-1].SlideNumber == c.SlideNumber {
			continue
		}
		merged = append(merged, c)
	}
	if len(merged) <= slideCount {
		return merged
	}
	return thin(merged, slideCount)
}

func thin(chapters []Chapter, limit int) []Chapter {
	last := len(chapters) - 1
	keep := make([]bool, len(chapters))
	keep[0] = true
	kept := 1
	for i := last; i > 0 && kept < limit; i-- {
		if chapters[i].IsQA {
			keep[i] = true
			kept++
		}
	}
	if !keep[last] && kept < limit {
		keep[last] = true
		kept++
	}

	var rest []int
	for i := range chapters {
		if !keep[i] {
			rest = append(rest, i)
		}
	}
	if slots := limit - kept; slots > 0 {
		for j := 0; j < slots; j++ {
			keep[rest[j*len(rest)/slots]] = true
		}
	}

	out := make([]Chapter, 0, limit)
	for i, c := range chapters {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
