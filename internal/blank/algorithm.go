package blank

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

// Algorithm selects how a grayscale raster is judged blank.
type Algorithm int

const (
	// Simple compares the share of pure white pixels against the threshold.
	Simple Algorithm = iota
	// Histogram also accepts near-white pages and near-uniform pages.
	Histogram
	// Entropy treats low information content as blank.
	Entropy
)

const (
	// WhiteLevel is the intensity above which the simple algorithm counts a pixel as white.
	WhiteLevel = 250
	// NearWhiteLevel is the lower bound of the near-white band used by the histogram algorithm.
	NearWhiteLevel = 240
	// NearWhiteSlack is added to the threshold for the near-white ratio.
	NearWhiteSlack = 5.0
	// UniformStdDev is the standard deviation under which a page counts as uniform.
	UniformStdDev = 5.0
)

func (a Algorithm) String() string {
	switch a {
	case Simple:
		return "simple"
	case Histogram:
		return "histogram"
	case Entropy:
		return "entropy"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// ParseAlgorithm maps "simple", "histogram" or "entropy" to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "":
		return Simple, nil
	case "histogram":
		return Histogram, nil
	case "entropy":
		return Entropy, nil
	}
	return Simple, fmt.Errorf("unknown blank detection algorithm %q", s)
}

func (a Algorithm) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Classify applies alg to a grayscale raster. threshold is a percentage in [0, 100].
// An empty raster is blank.
func Classify(gray *image.Gray, alg Algorithm, threshold float64) bool {
	h := histogramOf(gray)
	if h.total == 0 {
		return true
	}

	switch alg {
	case Histogram:
		white := h.percentFrom(WhiteLevel)
		nearWhite := h.percentFrom(NearWhiteLevel)
		return white > threshold || nearWhite > threshold+NearWhiteSlack || h.stdDev() < UniformStdDev
	case Entropy:
		if h.distinct() <= 1 {
			return true
		}
		return h.entropy() < (100-threshold)/10
	default:
		return h.percentFrom(WhiteLevel+1) > threshold
	}
}

type histogram struct {
	bins  [256]int
	total int
}

func histogramOf(gray *image.Gray) histogram {
	var h histogram
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[gray.PixOffset(b.Min.X, y) : gray.PixOffset(b.Min.X, y)+b.Dx()]
		for _, v := range row {
			h.bins[v]++
		}
	}
	h.total = b.Dx() * b.Dy()
	return h
}

// percentFrom returns the share of pixels with intensity >= level, in percent.
func (h histogram) percentFrom(level int) float64 {
	n := 0
	for v := level; v < 256; v++ {
		n += h.bins[v]
	}
	return float64(n) / float64(h.total) * 100
}

func (h histogram) stdDev() float64 {
	var sum, sq float64
	for v, n := range h.bins {
		f := float64(n)
		sum += float64(v) * f
		sq += float64(v) * float64(v) * f
	}
	mean := sum / float64(h.total)
	variance := sq/float64(h.total) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (h histogram) distinct() int {
	n := 0
	for _, c := range h.bins {
		if c > 0 {
			n++
		}
	}
	return n
}

// entropy is the Shannon entropy of the intensity distribution in bits.
func (h histogram) entropy() float64 {
	var e float64
	for _, c := range h.bins {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(h.total)
		e -= p * math.Log2(p)
	}
	return e
}

// toGrayscale converts an image to grayscale
func toGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				i := rgba.PixOffset(x, y)
				r := uint32(rgba.Pix[i]) * 0x101
				g := uint32(rgba.Pix[i+1]) * 0x101
				b := uint32(rgba.Pix[i+2]) * 0x101
				// same arithmetic as color.GrayModel
				gray.Pix[gray.PixOffset(x, y)] = uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 24)
			}
		}
		return gray
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// cropMargins trims the margins off img. A crop that would leave nothing
// returns img unchanged.
func cropMargins(img image.Image, m Margins) image.Image {
	b := img.Bounds()
	r := image.Rectangle{
		Min: image.Pt(b.Min.X+m.Left, b.Min.Y+m.Top),
		Max: image.Pt(b.Max.X-m.Right, b.Max.Y-m.Bottom),
	}
	if r.Dx() <= 0 || r.Dy() <= 0 || !r.In(b) {
		return img
	}
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	return img
}
