package pdfdoc

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// PageGeometry describes the raw page box and its /Rotate value.
type PageGeometry struct {
	Width    float64
	Height   float64
	Rotation int
}

// Landscape reports whether the page presents wider than tall once the
// rotation is applied.
func (g PageGeometry) Landscape() bool {
	if g.Rotation == 90 || g.Rotation == 270 {
		return g.Height >= g.Width
	}
	return g.Width >= g.Height
}

// NormalizeRotation maps any multiple of 90 (including negatives) onto
// {0, 90, 180, 270}.
func NormalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}

// GeometryReader reads page geometry for every page of a PDF.
type GeometryReader interface {
	Geometry(path string) ([]PageGeometry, error)
}

// PDFCPUGeometry reads geometry through pdfcpu's page tree, honouring
// inherited MediaBox and Rotate attributes.
type PDFCPUGeometry struct{}

func (PDFCPUGeometry) Geometry(path string) ([]PageGeometry, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read failed: %w", err)
	}

	out := make([]PageGeometry, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		g := PageGeometry{}
		if inh != nil {
			g.Rotation = NormalizeRotation(inh.Rotate)
			if inh.MediaBox != nil {
				g.Width = inh.MediaBox.Width()
				g.Height = inh.MediaBox.Height()
			}
		}
		out = append(out, g)
	}

	log.Debug().Str("file", path).Int("pages", len(out)).Msg("read page geometry")
	return out, nil
}
