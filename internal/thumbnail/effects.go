package thumbnail

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Unsharp mask applied to every rendered page before any optional effect.
const (
	UnsharpRadius    = 1.0
	UnsharpPercent   = 120.0
	UnsharpThreshold = 3
)

// smoothKernel is the 3x3 smoothing filter the sharpness enhancement blends against.
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// Effects are optional post-processing steps. Multipliers of 1 are neutral.
type Effects struct {
	Grayscale  bool    `toml:"grayscale"`
	Contrast   float64 `toml:"contrast"`
	Sharpness  float64 `toml:"sharpness"`
	Brightness float64 `toml:"brightness"`
}

// NeutralEffects leaves the image as rendered, apart from the unsharp mask.
func NeutralEffects() Effects {
	return Effects{Contrast: 1, Sharpness: 1, Brightness: 1}
}

// Apply runs the unsharp mask, then grayscale, contrast, sharpness and
// brightness in that order. Zero multipliers are treated as unset.
func (e Effects) Apply(img image.Image) *image.NRGBA {
	out := UnsharpMask(img, UnsharpRadius, UnsharpPercent, UnsharpThreshold)
	if e.Grayscale {
		out = imaging.Grayscale(out)
	}
	if active(e.Contrast) {
		out = Contrast(out, e.Contrast)
	}
	if active(e.Sharpness) {
		out = Sharpness(out, e.Sharpness)
	}
	if active(e.Brightness) {
		out = Brightness(out, e.Brightness)
	}
	return out
}

func active(f float64) bool { return f > 0 && f != 1 }

// UnsharpMask sharpens by adding back percent of the difference to a
// gaussian blur, for channel differences of at least threshold.
func UnsharpMask(img image.Image, radius, percent float64, threshold int) *image.NRGBA {
	src := imaging.Clone(img)
	blurred := imaging.Blur(src, radius)
	amount := percent / 100

	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			o := int(src.Pix[i+c])
			diff := o - int(blurred.Pix[i+c])
			if abs(diff) < threshold {
				continue
			}
			src.Pix[i+c] = clamp8(float64(o) + float64(diff)*amount)
		}
	}
	return src
}

// Contrast blends the image with its mean gray level; factor 0 gives a flat
// gray image and 1 the original.
func Contrast(img image.Image, factor float64) *image.NRGBA {
	mean := meanLuma(img)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(mean + factor*(float64(c.R)-mean)),
			G: clamp8(mean + factor*(float64(c.G)-mean)),
			B: clamp8(mean + factor*(float64(c.B)-mean)),
			A: c.A,
		}
	})
}

// Sharpness blends the image with a smoothed copy; factor 0 gives the
// smoothed image, 1 the original and larger values sharpen.
func Sharpness(img image.Image, factor float64) *image.NRGBA {
	src := imaging.Clone(img)
	smooth := imaging.Convolve3x3(src, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	out := imaging.Clone(src)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			s := float64(smooth.Pix[i+c])
			out.Pix[i+c] = clamp8(s + factor*(float64(src.Pix[i+c])-s))
		}
	}
	return out
}

// Brightness scales every channel by factor; 0 is black.
func Brightness(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) * factor),
			G: clamp8(float64(c.G) * factor),
			B: clamp8(float64(c.B) * factor),
			A: c.A,
		}
	})
}

// meanLuma is the rounded mean gray level of img.
func meanLuma(img image.Image) float64 {
	g := imaging.Grayscale(img)
	n := len(g.Pix) / 4
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(g.Pix); i += 4 {
		sum += float64(g.Pix[i])
	}
	return math.Floor(sum/float64(n) + 0.5)
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
