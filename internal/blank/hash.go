package blank

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/local/printorder/internal/pdfdoc"
)

// HashDPI is the resolution of the fallback raster hashed for text-less pages.
const HashDPI = 72.0

// ContentHash fingerprints a page for cache lookups: the page text when it
// has any, otherwise a low resolution raster. It is not a security hash.
func ContentHash(doc pdfdoc.Document, page int) (string, error) {
	text, err := doc.Text(page)
	if err == nil && strings.TrimSpace(text) != "" {
		sum := md5.Sum([]byte(text))
		return "t" + hex.EncodeToString(sum[:]), nil
	}

	img, err := doc.RenderDPI(page, HashDPI)
	if err != nil {
		return "", fmt.Errorf("hash render page %d: %w", page, err)
	}
	h := md5.New()
	b := img.Bounds()
	fmt.Fprintf(h, "%dx%d;", b.Dx(), b.Dy())
	writePixels(h, img)
	return "r" + hex.EncodeToString(h.Sum(nil)), nil
}

func writePixels(w io.Writer, img image.Image) {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := rgba.PixOffset(b.Min.X, y)
			_, _ = w.Write(rgba.Pix[i : i+4*b.Dx()])
		}
		return
	}
	row := make([]byte, 0, 4*b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row = row[:0]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			row = append(row, byte(r>>8), byte(g>>8), byte(bl>>8), byte(a>>8))
		}
		_, _ = w.Write(row)
	}
}

// cacheKey combines the content hash with every parameter that influences
// the verdict.
func cacheKey(hash string, o Options) string {
	m := o.Margins
	return fmt.Sprintf("%s|%s|%g|%d,%d,%d,%d", hash, o.Algorithm, o.Threshold, m.Top, m.Bottom, m.Left, m.Right)
}
