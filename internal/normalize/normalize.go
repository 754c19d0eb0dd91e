// Package normalize rewrites order documents whose pages are rotated or
// portrait into a fresh document of unrotated A4 landscape pages.
package normalize

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/pdfdoc"
)

const (
	// PageWidth and PageHeight are the fixed output page size in points.
	PageWidth  = 842.0
	PageHeight = 595.0
	// DefaultScale renders at 6x the 72 DPI base resolution.
	DefaultScale = 6.0

	outputPrefix = "normalized_"
)

// NeedsNormalization reports whether any page carries a /Rotate value or a
// raw page box taller than wide.
func NeedsNormalization(pages []pdfdoc.PageGeometry) bool {
	for _, p := range pages {
		if p.Rotation != 0 || p.Height > p.Width {
			return true
		}
	}
	return false
}

// Builder writes a PDF with one fixed-size page per image file.
type Builder interface {
	Build(imageFiles []string, out string) error
}

// Normalizer rebuilds documents through rasterization.
type Normalizer struct {
	opener   pdfdoc.Opener
	geometry pdfdoc.GeometryReader
	builder  Builder

	// Scale is pixels per point for the rebuilt pages.
	Scale float64
}

// New returns a Normalizer. Nil collaborators fall back to go-fitz for
// rendering and pdfcpu for geometry and page import.
func New(opener pdfdoc.Opener, geometry pdfdoc.GeometryReader, builder Builder) *Normalizer {
	if opener == nil {
		opener = pdfdoc.DefaultOpener()
	}
	if geometry == nil {
		geometry = pdfdoc.PDFCPUGeometry{}
	}
	if builder == nil {
		builder = PDFCPUBuilder{}
	}
	return &Normalizer{opener: opener, geometry: geometry, builder: builder, Scale: DefaultScale}
}

// OutputPath is where Normalize writes the rebuilt copy of path.
func OutputPath(path, tempDir string) string {
	return filepath.Join(tempDir, outputPrefix+filepath.Base(path))
}

// Normalize returns the path of a normalized copy of path in tempDir and
// true, or path itself and false when the document needs no change or the
// rebuild fails. A failed rebuild leaves no file behind.
func (n *Normalizer) Normalize(ctx context.Context, path, tempDir string) (string, bool) {
	pages, err := n.geometry.Geometry(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("page geometry unreadable; keeping original")
		return path, false
	}
	if !NeedsNormalization(pages) {
		return path, false
	}

	out := OutputPath(path, tempDir)
	start := time.Now()
	if err := n.rebuild(ctx, path, out, tempDir); err != nil {
		_ = os.Remove(out)
		log.Warn().Err(err).Str("file", path).Msg("normalization failed; keeping original")
		return path, false
	}

	log.Info().
		Str("file", path).
		Str("output", out).
		Int("pages", len(pages)).
		Dur("took", time.Since(start)).
		Msg("order document normalized")
	return out, true
}

func (n *Normalizer) rebuild(ctx context.Context, path, out, tempDir string) error {
	doc, err := n.opener.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer doc.Close()

	scratch, err := os.MkdirTemp(tempDir, "pages-*")
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	scale := n.Scale
	if scale <= 0 {
		scale = DefaultScale
	}

	files := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := doc.RenderDPI(i, 72*scale)
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}
		page := Canvas(img, scale)
		f := filepath.Join(scratch, fmt.Sprintf("page_%04d.png", i+1))
		if err := imaging.Save(page, f); err != nil {
			return fmt.Errorf("write page %d: %w", i+1, err)
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("document has no pages")
	}
	_ = os.Remove(out)
	return n.builder.Build(files, out)
}

// Canvas turns a rendered page into a landscape page image: portrait rasters
// are turned a quarter clockwise, then the raster is scaled to fit a white
// PageWidth x PageHeight canvas at scale pixels per point and centered.
func Canvas(img image.Image, scale float64) *image.NRGBA {
	b := img.Bounds()
	if b.Dy() > b.Dx() {
		img = imaging.Rotate270(img)
		b = img.Bounds()
	}

	cw := int(math.Round(PageWidth * scale))
	ch := int(math.Round(PageHeight * scale))
	canvas := imaging.New(cw, ch, color.White)
	if b.Dx() == 0 || b.Dy() == 0 {
		return canvas
	}

	ratio := math.Min(float64(cw)/float64(b.Dx()), float64(ch)/float64(b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*ratio)))
	h := max(1, int(math.Round(float64(b.Dy())*ratio)))
	fitted := imaging.Resize(img, w, h, imaging.Lanczos)
	return imaging.PasteCenter(canvas, fitted)
}
