package qa

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderWidth  = 1280
	placeholderHeight = 720
	placeholderScale  = 10
	placeholderText   = "Q&A"
)

var (
	placeholderOnce  sync.Once
	placeholderBytes []byte
	placeholderErr   error
)

// Placeholder returns the JPEG shown for Q&A chapters instead of a slide.
func Placeholder() ([]byte, error) {
	placeholderOnce.Do(func() {
		placeholderBytes, placeholderErr = renderPlaceholder()
	})
	return placeholderBytes, placeholderErr
}

func renderPlaceholder() ([]byte, error) {
	background := color.RGBA{R: 0x1f, G: 0x2a, B: 0x44, A: 0xff}
	small := image.NewRGBA(image.Rect(0, 0, placeholderWidth/placeholderScale, placeholderHeight/placeholderScale))
	xdraw.Draw(small, small.Bounds(), image.NewUniform(background), image.Point{}, xdraw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: small, Src: image.NewUniform(color.White), Face: face}
	width := d.MeasureString(placeholderText).Ceil()
	x := (small.Bounds().Dx() - width) / 2
	y := (small.Bounds().Dy() + face.Ascent - face.Descent) / 2
	d.Dot = fixed.P(x, y)
	d.DrawString(placeholderText)

	card := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	xdraw.NearestNeighbor.Scale(card, card.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, card, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
