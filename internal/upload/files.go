package upload

import (
	"path"
	"regexp"
	"strings"
)

type Kind string

const (
	KindMedia        Kind = "media"
	KindPresentation Kind = "presentation"
)

type FileClass string

const (
	ClassVideo        FileClass = "video"
	ClassAudio        FileClass = "audio"
	ClassPresentation FileClass = "presentation"
)

var extensionClasses = map[string]FileClass{
	".mp4":  ClassVideo,
	".avi":  ClassVideo,
	".mov":  ClassVideo,
	".mkv":  ClassVideo,
	".webm": ClassVideo,
	".mp3":  ClassAudio,
	".wav":  ClassAudio,
	".m4a":  ClassAudio,
	".aac":  ClassAudio,
	".ogg":  ClassAudio,
	".flac": ClassAudio,
	".wma":  ClassAudio,
	".pptx": ClassPresentation,
	".ppt":  ClassPresentation,
	".pdf":  ClassPresentation,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// Classify reports the file class implied by the extension of name.
func Classify(name string) (FileClass, bool) {
	c, ok := extensionClasses[Ext(name)]
	return c, ok
}

func IsMedia(name string) bool {
	c, ok := Classify(name)
	return ok && (c == ClassVideo || c == ClassAudio)
}

func IsPresentation(name string) bool {
	c, ok := Classify(name)
	return ok && c == ClassPresentation
}

// Accepts reports whether a file with this name may be uploaded as kind.
func (k Kind) Accepts(name string) bool {
	switch k {
	case KindMedia:
		return IsMedia(name)
	case KindPresentation:
		return IsPresentation(name)
	default:
		return false
	}
}

// SanitizeFilename keeps the base name and replaces anything outside a conservative
// character set, so the name is safe inside an object key.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "file"
	}
	return name
}
