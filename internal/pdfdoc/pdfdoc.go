// Package pdfdoc abstracts the PDF backends used by the pipeline: go-fitz for
// rasterizing pages and reading their text, pdfcpu for page geometry.
package pdfdoc

import (
	"errors"
	"fmt"
	"image"
)

// Document is an open PDF that can be rasterized page by page.
// Page indices are zero-based.
type Document interface {
	NumPage() int
	RenderDPI(page int, dpi float64) (image.Image, error)
	Text(page int) (string, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Document.
type Opener interface {
	Open(path string) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Document, error)

func (f OpenerFunc) Open(path string) (Document, error) { return f(path) }

// defaultOpener is provided in open_fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener allows swapping the default backend.
func setDefaultOpener(o Opener) { defaultOpener = o }

// DefaultOpener returns the process-wide backend.
func DefaultOpener() Opener { return defaultOpener }

// Open opens path with the default backend.
func Open(path string) (Document, error) {
	if defaultOpener == nil {
		return nil, errors.New("no PDF opener configured")
	}
	doc, err := defaultOpener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return doc, nil
}

// ErrPageRange is returned for page indices outside the document.
var ErrPageRange = errors.New("page index out of range")

// CheckPage validates a zero-based page index against doc.
func CheckPage(doc Document, page int) error {
	if page < 0 || page >= doc.NumPage() {
		return fmt.Errorf("%w: %d of %d", ErrPageRange, page, doc.NumPage())
	}
	return nil
}
