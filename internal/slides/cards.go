package slides

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	drawingNS      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	slideRelType   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	cardWidth      = 1280
	cardHeight     = 720
	cardScale      = 4
	cardMaxLines   = 9
	cardLineHeight = 15
)

var slideFile = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// renderCards draws one text card per slide from the pptx XML. It is used when no office
// converter can render the real slides.
func renderCards(pptxPath, outDir string) (*Deck, error) {
	zr, err := zip.OpenReader(pptxPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer zr.Close()

	order, err := slideOrder(&zr.Reader)
	if err != nil {
		return nil, err
	}
	files := slideNames(&zr.Reader)

	deck := &Deck{Degraded: true}
	for i, name := range order {
		lines, err := slideText(files[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
		}
		dest := filepath.Join(outDir, chapters.SlideImageName(i+1))
		if err := writeCard(dest, i+1, lines); err != nil {
			return nil, err
		}
		deck.Images = append(deck.Images, dest)
	}
	return deck, nil
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder lists slide parts in presentation order. When the presentation part cannot
// be resolved, slides are ordered by their part number.
func slideOrder(zr *zip.Reader) ([]string, error) {
	files := slideNames(zr)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no slides in presentation", ErrUnreadable)
	}

	if order := declaredOrder(zr, files); len(order) > 0 {
		return order, nil
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return partNumber(names[i]) < partNumber(names[j]) })
	return names, nil
}

func declaredOrder(zr *zip.Reader, files map[string]*zip.File) []string {
	var pres presentationXML
	var rels relationshipsXML
	if decodePart(zr, "ppt/presentation.xml", &pres) != nil || decodePart(zr, "ppt/_rels/presentation.xml.rels", &rels) != nil {
		return nil
	}

	targets := map[string]string{}
	for _, r := range rels.Relationships {
		if r.Type == slideRelType {
			targets[r.ID] = path.Clean(path.Join("ppt", r.Target))
		}
	}

	var order []string
	for _, id := range pres.SlideIDs {
		name, ok := targets[id.RID]
		if !ok {
			return nil
		}
		if _, ok := files[name]; !ok {
			return nil
		}
		order = append(order, name)
	}
	return order
}

func decodePart(zr *zip.Reader, name string, v any) error {
	f, err := zr.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return xml.NewDecoder(f).Decode(v)
}

func partNumber(name string) int {
	m := slideFile.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// slideText returns the text of each DrawingML paragraph on the slide.
func slideText(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		lines   []string
		current strings.Builder
		inText  bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == drawingNS && t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Space != drawingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(current.String()); line != "" {
					lines = append(lines, line)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return lines, nil
}

// writeCard draws the slide number and text with a bitmap font on a small canvas, then
// scales it up to the card size.
func writeCard(dest string, number int, lines []string) error {
	small := image.NewRGBA(image.Rect(0, 0, cardWidth/cardScale, cardHeight/cardScale))
	xdraw.Draw(small, small.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	maxChars := (small.Bounds().Dx() - 16) / basicfont.Face7x13.Advance

	y := 20
	draw := func(s string) {
		if len([]rune(s)) > maxChars {
			s = string([]rune(s)[:maxChars-1]) + "~"
		}
		d.Dot = fixed.P(8, y)
		d.DrawString(s)
		y += cardLineHeight
	}

	draw(fmt.Sprintf("Slide %d", number))
	y += cardLineHeight / 2
	for i, line := range lines {
		if i == cardMaxLines {
			break
		}
		draw(line)
	}

	card := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	xdraw.NearestNeighbor.Scale(card, card.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, card, &jpeg.Options{Quality: 90}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
