// Package pdftest provides in-memory pdfdoc backends for tests: documents are
// lists of pre-rendered page images with optional text.
package pdftest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/local/printorder/internal/pdfdoc"
)

// Page is one fake page.
type Page struct {
	Image image.Image
	Text  string
	Err   error // returned by RenderDPI when set
}

// Doc is a fake pdfdoc.Document.
type Doc struct {
	Pages []Page

	mu      sync.Mutex
	renders []float64
	closed  int
}

func (d *Doc) NumPage() int { return len(d.Pages) }

func (d *Doc) RenderDPI(page int, dpi float64) (image.Image, error) {
	if err := pdfdoc.CheckPage(d, page); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.renders = append(d.renders, dpi)
	d.mu.Unlock()
	p := d.Pages[page]
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Image, nil
}

func (d *Doc) Text(page int) (string, error) {
	if err := pdfdoc.CheckPage(d, page); err != nil {
		return "", err
	}
	return d.Pages[page].Text, nil
}

func (d *Doc) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	return nil
}

// Renders returns the DPI of every RenderDPI call so far.
func (d *Doc) Renders() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.renders...)
}

// Closed reports how many times Close was called.
func (d *Doc) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ErrNotFound is returned by Opener for unknown paths.
var ErrNotFound = errors.New("pdftest: no such document")

// Opener serves Docs by path.
type Opener struct {
	mu   sync.Mutex
	Docs map[string]*Doc
}

// NewOpener builds an Opener from path -> Doc pairs.
func NewOpener(docs map[string]*Doc) *Opener {
	return &Opener{Docs: docs}
}

func (o *Opener) Open(path string) (pdfdoc.Document, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.Docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return d, nil
}

// Blank returns a white w x h page.
func Blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// Inked returns a white page with a black block covering frac of its area,
// placed in the middle of the page.
func Inked(w, h int, frac float64) *image.RGBA {
	img := Blank(w, h)
	bw := int(float64(w) * frac)
	if bw < 1 {
		bw = 1
	}
	x0 := (w - bw) / 2
	block := image.Rect(x0, 0, x0+bw, h)
	draw.Draw(img, block, image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

// Solid returns a page filled with c.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}
