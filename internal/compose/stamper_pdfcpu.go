package compose

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFStamper applies stamps as pdfcpu image watermarks placed on top of the
// page content.
type PDFStamper struct{}

func (PDFStamper) Stamp(ctx context.Context, inPath, outPath string, stamps []Stamp) error {
	dims, err := api.PageDimsFile(inPath)
	if err != nil {
		return fmt.Errorf("read page dims: %w", err)
	}

	byPage := make(map[int][]*model.Watermark)
	for _, s := range stamps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Page < 0 || s.Page >= len(dims) {
			return fmt.Errorf("stamp %s: page %d of %d", s.BoxID, s.Page, len(dims))
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, s.Image); err != nil {
			return fmt.Errorf("encode stamp %s: %w", s.BoxID, err)
		}
		wm, err := api.ImageWatermarkForReader(&buf, Description(s, dims[s.Page].Height), true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("build stamp %s: %w", s.BoxID, err)
		}
		byPage[s.Page+1] = append(byPage[s.Page+1], wm)
	}

	if err := api.AddWatermarksSliceMapFile(inPath, outPath, byPage, nil); err != nil {
		return fmt.Errorf("apply stamps: %w", err)
	}
	return nil
}

// Description renders the pdfcpu watermark description placing s with its
// lower-left corner at (x, pageHeight-y-h), scaled so the bitmap spans the
// box width.
func Description(s Stamp, pageHeight float64) string {
	llx := s.Rect.X
	lly := pageHeight - s.Rect.Y - s.Rect.H
	scale := s.Rect.W / float64(s.Image.Bounds().Dx())
	return fmt.Sprintf("pos:bl, off:%.2f %.2f, sc:%.6f abs, rot:0, op:1", llx, lly, scale)
}
