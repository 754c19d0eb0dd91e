// Package thumbnail rasterizes selected pages of print-data PDFs into
// small bitmaps for the order document.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/metrics"
	"github.com/local/printorder/internal/pageselect"
	"github.com/local/printorder/internal/pdfdoc"
)

const (
	// DefaultDPI renders at 6x the PDF base resolution.
	DefaultDPI = 432.0
	// MaxGridCells is the most thumbnails a combined image holds.
	MaxGridCells = 4
)

// BlankChecker skips pages without content. *blank.Classifier satisfies it.
type BlankChecker interface {
	IsBlank(ctx context.Context, doc pdfdoc.Document, page int) bool
}

// Request describes the thumbnails wanted from one source document.
type Request struct {
	Path      string
	Selection string
	MaxWidth  int
	MaxHeight int
	DPI       float64
	Effects   Effects
	MultiPage bool
}

// Thumbnail is one rendered bitmap and where it came from. Page is -1 for a
// combined grid.
type Thumbnail struct {
	Image  *image.NRGBA
	Page   int
	Source string
}

// Renderer turns source documents into thumbnails.
type Renderer struct {
	opener pdfdoc.Opener
	blank  BlankChecker
}

// NewRenderer builds a Renderer. A nil opener uses the go-fitz backend; a
// nil checker keeps every page.
func NewRenderer(opener pdfdoc.Opener, blank BlankChecker) *Renderer {
	if opener == nil {
		opener = pdfdoc.DefaultOpener()
	}
	return &Renderer{opener: opener, blank: blank}
}

// Render returns the thumbnails of the selected, non-blank pages in page
// selection order. A document without usable pages yields an empty list.
func (r *Renderer) Render(ctx context.Context, req Request) ([]Thumbnail, error) {
	if req.MaxWidth <= 0 || req.MaxHeight <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %dx%d", req.MaxWidth, req.MaxHeight)
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	doc, err := r.opener.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.Path, err)
	}
	defer doc.Close()

	start := time.Now()
	pages := pageselect.Parse(req.Selection, doc.NumPage())
	thumbs := make([]Thumbnail, 0, len(pages))

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page >= doc.NumPage() {
			continue
		}
		if r.blank != nil && r.blank.IsBlank(ctx, doc, page) {
			log.Info().Str("file", req.Path).Int("page", page+1).Msg("blank page skipped")
			continue
		}

		img, err := doc.RenderDPI(page, dpi)
		if err != nil {
			log.Warn().Err(err).Str("file", req.Path).Int("page", page+1).Msg("page render failed; skipping")
			continue
		}
		out := Downscale(req.Effects.Apply(img), req.MaxWidth, req.MaxHeight)
		thumbs = append(thumbs, Thumbnail{Image: out, Page: page, Source: req.Path})
	}

	log.Debug().
		Str("file", req.Path).
		Int("selected", len(pages)).
		Int("thumbnails", len(thumbs)).
		Float64("dpi", dpi).
		Dur("took", time.Since(start)).
		Msg("thumbnails rendered")

	if req.MultiPage && len(thumbs) > 1 {
		grid := Combine(thumbs, req.MaxWidth, req.MaxHeight)
		thumbs = []Thumbnail{{Image: grid, Page: -1, Source: req.Path}}
	}
	metrics.AddThumbnails(len(thumbs))
	return thumbs, nil
}

// Downscale fits img inside w x h in two Lanczos passes: first into twice
// the target size, then into the target. Images never grow.
func Downscale(img image.Image, w, h int) *image.NRGBA {
	mid := imaging.Fit(img, w*2, h*2, imaging.Lanczos)
	return imaging.Fit(mid, w, h, imaging.Lanczos)
}

// Combine pastes up to four thumbnails on a white canvas: two side by side
// in a 2x1 strip, three or four in a 2x2 grid. Extra thumbnails are dropped.
func Combine(thumbs []Thumbnail, cellW, cellH int) *image.NRGBA {
	if len(thumbs) > MaxGridCells {
		thumbs = thumbs[:MaxGridCells]
	}
	if len(thumbs) == 1 {
		return thumbs[0].Image
	}

	rows := 1
	if len(thumbs) > 2 {
		rows = 2
	}
	canvas := imaging.New(cellW*2, cellH*rows, image.White)
	for i, t := range thumbs {
		pos := image.Pt((i%2)*cellW, (i/2)*cellH)
		canvas = imaging.Paste(canvas, t.Image, pos)
	}
	return canvas
}
