package slides

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/chaptermaker/chaptermaker/internal/chapters"
	"github.com/chaptermaker/chaptermaker/internal/tools"
	"github.com/chaptermaker/chaptermaker/internal/upload"
	"github.com/chaptermaker/chaptermaker/pkg/log"
)

const DefaultResolution = 150

var pageNumber = regexp.MustCompile(`-(\d+)\.jpg$`)

type Extractor struct {
	soffice    string
	pdftoppm   string
	resolution int
	run        tools.CommandRunner
	available  func(name string) bool
	logger     *log.StructuredLogger
}

type Option func(e *Extractor)

func WithSoffice(path string) Option {
	return func(e *Extractor) { e.soffice = path }
}

func WithPdftoppm(path string) Option {
	return func(e *Extractor) { e.pdftoppm = path }
}

func WithResolution(dpi int) Option {
	return func(e *Extractor) {
		if dpi > 0 {
			e.resolution = dpi
		}
	}
}

// WithCommandRunner replaces the host command runner and tool lookup, mostly for tests.
func WithCommandRunner(r tools.CommandRunner, available func(name string) bool) Option {
	return func(e *Extractor) {
		e.run = r
		e.available = available
	}
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		soffice:    "soffice",
		pdftoppm:   "pdftoppm",
		resolution: DefaultResolution,
		run:        tools.ExecRunner,
		available:  tools.Available,
		logger:     log.NewDebugLogger("slide_extractor"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Check rejects presentations that can never be rendered, before any work is done.
func (e *Extractor) Check(path string) error {
	switch upload.Ext(path) {
	case ".pdf", ".pptx":
		return nil
	case ".ppt":
		if !e.available(e.soffice) {
			return fmt.Errorf("%w: .ppt needs %s", ErrConverterUnavailable, e.soffice)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, upload.Ext(path))
	}
}

// Extract renders every slide of the presentation at path into outDir.
func (e *Extractor) Extract(ctx context.Context, path, outDir string) (*Deck, error) {
	if err := e.Check(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	tracer := e.logger.WithContext(ctx).Operation("extract_slides").
		WithString("presentation", filepath.Base(path)).
		Build()

	var (
		deck *Deck
		err  error
	)
	switch upload.Ext(path) {
	case ".pdf":
		deck, err = e.rasterize(ctx, path, outDir)
	default:
		deck, err = e.convertOffice(ctx, path, outDir)
	}
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}
	if deck.Count() == 0 {
		return nil, fmt.Errorf("%w: no slides found", ErrUnreadable)
	}

	tracer.Success().WithInt("slides", deck.Count()).WithBool("degraded", deck.Degraded).Log()
	return deck, nil
}

// Count estimates the number of slides without rendering them. It returns 0 when the
// count cannot be determined cheaply.
func (e *Extractor) Count(path string) int {
	switch upload.Ext(path) {
	case ".pptx":
		zr, err := zip.OpenReader(path)
		if err != nil {
			return 0
		}
		defer zr.Close()
		n, err := slideOrder(&zr.Reader)
		if err != nil {
			return 0
		}
		return len(n)
	case ".pdf":
		return countPDFPages(path)
	}
	return 0
}

func (e *Extractor) convertOffice(ctx context.Context, path, outDir string) (*Deck, error) {
	if !e.available(e.soffice) {
		if upload.Ext(path) == ".pptx" {
			e.logger.WithContext(ctx).Operation("extract_slides").Build().
				Warn(fmt.Errorf("%s not found, rendering text cards", e.soffice)).Log()
			return renderCards(path, outDir)
		}
		return nil, fmt.Errorf("%w: %s not found", ErrConverterUnavailable, e.soffice)
	}

	pdfDir, err := os.MkdirTemp(outDir, "pdf-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(pdfDir)

	if _, err := e.run(ctx, e.soffice, "--headless", "--convert-to", "pdf", "--outdir", pdfDir, path); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if upload.Ext(path) == ".pptx" {
			e.logger.WithContext(ctx).Operation("extract_slides").Build().Warn(err).Log()
			return renderCards(path, outDir)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	pdfs, _ := filepath.Glob(filepath.Join(pdfDir, "*.pdf"))
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("%w: conversion produced no pdf", ErrUnreadable)
	}
	return e.rasterize(ctx, pdfs[0], outDir)
}

// rasterize renders each pdf page and renames the pages to NN.jpg in page order.
func (e *Extractor) rasterize(ctx context.Context, pdfPath, outDir string) (*Deck, error) {
	pageDir, err := os.MkdirTemp(outDir, "pages-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(pageDir)

	if _, err := e.run(ctx, e.pdftoppm, "-jpeg", "-r", strconv.Itoa(e.resolution), pdfPath, filepath.Join(pageDir, "page")); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	entries, err := os.ReadDir(pageDir)
	if err != nil {
		return nil, err
	}
	type page struct {
		num  int
		name string
	}
	var pages []page
	for _, entry := range entries {
		m := pageNumber.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, page{num: n, name: entry.Name()})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	deck := &Deck{}
	for i, p := range pages {
		dest := filepath.Join(outDir, chapters.SlideImageName(i+1))
		if err := os.Rename(filepath.Join(pageDir, p.name), dest); err != nil {
			return nil, err
		}
		deck.Images = append(deck.Images, dest)
	}
	return deck, nil
}

var pdfPage = regexp.MustCompile(`/Type\s*/Page[^s]`)

func countPDFPages(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return len(pdfPage.FindAllIndex(data, -1))
}

// slideNames keeps zip entries that are slide parts, e.g. ppt/slides/slide3.xml.
func slideNames(zr *zip.Reader) map[string]*zip.File {
	out := map[string]*zip.File{}
	for _, f := range zr.File {
		if slideFile.MatchString(f.Name) {
			out[f.Name] = f
		}
	}
	return out
}
