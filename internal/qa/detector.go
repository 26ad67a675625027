package qa

import (
	"regexp"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
)

// DefaultKeywords are matched case-insensitively on word boundaries.
var DefaultKeywords = []string{
	"q&a",
	"q & a",
	"questions",
	"q and a",
	"qa",
	"question and answer",
}

// Detector decides whether a chapter is a question and answer section.
type Detector interface {
	Detect(c chapters.Chapter) bool
}

// KeywordDetector matches chapter titles against a keyword list. The generator's is_qa
// hint is honored as well.
type KeywordDetector struct {
	re *regexp.Regexp
}

var _ Detector = (*KeywordDetector)(nil)

// NewKeywordDetector uses DefaultKeywords when keywords is empty.
func NewKeywordDetector(keywords ...string) *KeywordDetector {
	alternatives := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			alternatives = append(alternatives, regexp.QuoteMeta(kw))
		}
	}
	if len(alternatives) == 0 {
		for _, kw := range DefaultKeywords {
			alternatives = append(alternatives, regexp.QuoteMeta(kw))
		}
	}
	return &KeywordDetector{re: regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(?:` + strings.Join(alternatives, "|") + `)(?:$|[^\pL\pN])`)}
}

func (d *KeywordDetector) Detect(c chapters.Chapter) bool {
	return c.IsQA || d.re.MatchString(c.Title)
}

// Apply marks the detected chapters and reports whether any was found.
func Apply(d Detector, cs []chapters.Chapter) ([]chapters.Chapter, bool) {
	found := false
	for i := range cs {
		cs[i].IsQA = d.Detect(cs[i])
		found = found || cs[i].IsQA
	}
	return cs, found
}

// Clear removes every Q&A mark, for jobs that opted out of detection.
func Clear(cs []chapters.Chapter) []chapters.Chapter {
	for i := range cs {
		cs[i].IsQA = false
	}
	return cs
}
