// Package layout assigns rendered thumbnails and the QR image to the
// placement boxes of each order page.
package layout

import (
	"image"
)

// Box is a thumbnail placement region. Coordinates are in points with the
// origin at the top-left corner of the page.
type Box struct {
	ID       string
	Name     string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Rotation float64 // degrees, counter-clockwise
	Opacity  float64 // 0..1
}

// QRBox is a square QR placement region. QR codes are always opaque.
type QRBox struct {
	ID       string
	Name     string
	X        float64
	Y        float64
	Size     float64
	Rotation float64
}

// Rect is a page region in points, top-left origin.
type Rect struct {
	X, Y, W, H float64
}

// Kind tells thumbnail placements from QR placements.
type Kind int

const (
	KindThumbnail Kind = iota
	KindQR
)

func (k Kind) String() string {
	if k == KindQR {
		return "qr"
	}
	return "thumbnail"
}

// Placement is one bitmap to stamp onto one page.
type Placement struct {
	Page     int
	Kind     Kind
	BoxID    string
	Rect     Rect
	Rotation float64
	Opacity  float64
	Image    image.Image
	// Index is the position of Image in the thumbnail list; -1 for QR.
	Index int
}

// Pick chooses the item for box boxIndex of page pageIndex from the
// ordered list. The flat index is pageIndex*boxCount+boxIndex; an empty list
// yields nothing, a single item is reused everywhere and an index past the
// end falls back to the last item.
func Pick[T any](items []T, pageIndex, boxCount, boxIndex int) (T, int, bool) {
	var zero T
	switch n := len(items); {
	case n == 0:
		return zero, -1, false
	case n == 1:
		return items[0], 0, true
	default:
		flat := pageIndex*boxCount + boxIndex
		if flat >= 0 && flat < n {
			return items[flat], flat, true
		}
		return items[n-1], n - 1, true
	}
}

// Input is everything Resolve needs for one order document.
type Input struct {
	PageCount  int
	Blank      func(page int) bool // nil means no page is blank
	Boxes      []Box
	QRBoxes    []QRBox
	Thumbnails []image.Image
	QR         image.Image // nil when no QR image was supplied
}

// Resolve returns the placements for every non-blank page, page by page,
// thumbnail boxes in declaration order followed by QR boxes.
func Resolve(in Input) []Placement {
	var out []Placement
	for page := 0; page < in.PageCount; page++ {
		if in.Blank != nil && in.Blank(page) {
			continue
		}
		for bi, box := range in.Boxes {
			img, idx, ok := Pick(in.Thumbnails, page, len(in.Boxes), bi)
			if !ok {
				break
			}
			out = append(out, Placement{
				Page:     page,
				Kind:     KindThumbnail,
				BoxID:    box.ID,
				Rect:     Rect{X: box.X, Y: box.Y, W: box.Width, H: box.Height},
				Rotation: box.Rotation,
				Opacity:  clampOpacity(box.Opacity),
				Image:    img,
				Index:    idx,
			})
		}
		if in.QR == nil {
			continue
		}
		for _, qb := range in.QRBoxes {
			out = append(out, Placement{
				Page:     page,
				Kind:     KindQR,
				BoxID:    qb.ID,
				Rect:     Rect{X: qb.X, Y: qb.Y, W: qb.Size, H: qb.Size},
				Rotation: qb.Rotation,
				Opacity:  1,
				Image:    in.QR,
				Index:    -1,
			})
		}
	}
	return out
}

func clampOpacity(o float64) float64 {
	switch {
	case o < 0:
		return 0
	case o > 1:
		return 1
	}
	return o
}
