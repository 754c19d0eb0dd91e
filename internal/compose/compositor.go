// Package compose stamps resolved placements onto the order document.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/layout"
)

// Stamp is one prepared bitmap for one page. Rect uses the top-left origin
// of layout.Rect; Stamper implementations convert as needed.
type Stamp struct {
	Page  int // zero-based
	Kind  layout.Kind
	BoxID string
	Rect  layout.Rect
	Image *image.NRGBA
}

// Stamper writes inPath with stamps applied to outPath.
type Stamper interface {
	Stamp(ctx context.Context, inPath, outPath string, stamps []Stamp) error
}

// WriteError reports that the output document could not be produced.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// Compositor prepares bitmaps for their boxes and hands them to a Stamper.
type Compositor struct {
	stamper Stamper
}

// New builds a Compositor. A nil stamper uses pdfcpu.
func New(stamper Stamper) *Compositor {
	if stamper == nil {
		stamper = PDFStamper{}
	}
	return &Compositor{stamper: stamper}
}

// Prepare converts placements into stamps, fitting each image to its box.
func Prepare(placements []layout.Placement) []Stamp {
	stamps := make([]Stamp, 0, len(placements))
	for _, p := range placements {
		if p.Image == nil || p.Rect.W <= 0 || p.Rect.H <= 0 {
			continue
		}
		opacity := p.Opacity
		if p.Kind == layout.KindQR {
			opacity = 1
		}
		img := FitToBox(p.Image, p.Rect.W, p.Rect.H, p.Rotation, opacity)
		if img.Bounds().Empty() {
			continue
		}
		stamps = append(stamps, Stamp{Page: p.Page, Kind: p.Kind, BoxID: p.BoxID, Rect: p.Rect, Image: img})
	}
	return stamps
}

// Apply writes inPath with every placement stamped to outPath. The document
// is written next to outPath and renamed into place, so a failed write
// leaves no partial file behind.
func (c *Compositor) Apply(ctx context.Context, inPath, outPath string, placements []layout.Placement) error {
	start := time.Now()
	stamps := Prepare(placements)

	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: outPath, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return &WriteError{Path: outPath, Err: err}
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if len(stamps) == 0 {
		err = copyFile(inPath, tmpPath)
	} else {
		err = c.stamper.Stamp(ctx, inPath, tmpPath, stamps)
	}
	if err != nil {
		return &WriteError{Path: outPath, Err: err}
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return &WriteError{Path: outPath, Err: err}
	}
	committed = true

	log.Info().
		Str("output", outPath).
		Int("stamps", len(stamps)).
		Dur("took", time.Since(start)).
		Msg("order document written")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
