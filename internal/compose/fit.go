package compose

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// MaxPixelsPerPoint caps the embedded resolution of a placement (≈ 432 DPI).
const MaxPixelsPerPoint = 6.0

// FitToBox prepares img for a w x h point box: it rotates img counter-clockwise
// by rotation degrees, scales it to fit the box preserving aspect ratio,
// centers it on a transparent canvas with the box's aspect ratio and scales
// its alpha by opacity when opacity < 1.
//
// The canvas keeps roughly the source resolution so a large bitmap is not
// squashed to one pixel per point.
func FitToBox(img image.Image, w, h, rotation, opacity float64) *image.NRGBA {
	if w <= 0 || h <= 0 || img.Bounds().Empty() {
		return &image.NRGBA{}
	}

	src := img
	if r := math.Mod(rotation, 360); r != 0 {
		src = imaging.Rotate(img, r, color.Transparent)
	}

	sb := src.Bounds()
	ppp := math.Min(float64(sb.Dx())/w, float64(sb.Dy())/h)
	ppp = math.Max(1, math.Min(ppp, MaxPixelsPerPoint))
	cw := int(math.Round(w * ppp))
	ch := int(math.Round(h * ppp))
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}

	scale := math.Min(float64(cw)/float64(sb.Dx()), float64(ch)/float64(sb.Dy()))
	fw := clampInt(int(math.Round(float64(sb.Dx())*scale)), 1, cw)
	fh := clampInt(int(math.Round(float64(sb.Dy())*scale)), 1, ch)
	x0 := (cw - fw) / 2
	y0 := (ch - fh) / 2

	canvas := image.NewNRGBA(image.Rect(0, 0, cw, ch))
	xdraw.CatmullRom.Scale(canvas, image.Rect(x0, y0, x0+fw, y0+fh), src, sb, xdraw.Src, nil)

	if opacity < 1 {
		ScaleAlpha(canvas, opacity)
	}
	return canvas
}

// ScaleAlpha multiplies the alpha channel of img by opacity in place.
func ScaleAlpha(img *image.NRGBA, opacity float64) {
	if opacity < 0 {
		opacity = 0
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(math.Round(float64(img.Pix[i]) * opacity))
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
