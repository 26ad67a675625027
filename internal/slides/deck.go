package slides

import (
	"errors"
	"path/filepath"
)

var (
	// ErrUnsupportedFormat is returned for files that are not .pdf, .pptx or .ppt.
	ErrUnsupportedFormat = errors.New("unsupported presentation format")
	// ErrUnreadable is returned when a presentation cannot be rendered.
	ErrUnreadable = errors.New("unreadable presentation")
	// ErrConverterUnavailable is returned for .ppt files when no office converter is installed.
	ErrConverterUnavailable = errors.New("presentation converter unavailable")
)

// Deck is the rendered slide deck. Images are local files named 01.jpg, 02.jpg and so
// on, in slide order.
type Deck struct {
	Images []string
	// Degraded is set when slides were rendered as text cards instead of real pictures.
	Degraded bool
}

func (d *Deck) Count() int {
	if d == nil {
		return 0
	}
	return len(d.Images)
}

// Image returns the local path of slide n, counted from 1.
func (d *Deck) Image(n int) (string, bool) {
	if d == nil || n < 1 || n > len(d.Images) {
		return "", false
	}
	return d.Images[n-1], true
}

// Names returns the base names of the slide images.
func (d *Deck) Names() []string {
	names := make([]string, 0, d.Count())
	for _, p := range d.Images {
		names = append(names, filepath.Base(p))
	}
	return names
}
