package pdfdoc

import (
	"image"

	fitz "github.com/gen2brain/go-fitz"
)

// fitzOpener implements Opener using github.com/gen2brain/go-fitz.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

func init() {
	setDefaultOpener(fitzOpener{})
}

type fitzDoc struct{ *fitz.Document }

// RenderDPI renders with the page rotation applied by MuPDF.
func (d fitzDoc) RenderDPI(page int, dpi float64) (image.Image, error) {
	if err := CheckPage(d, page); err != nil {
		return nil, err
	}
	return d.Document.ImageDPI(page, dpi)
}

func (d fitzDoc) Text(page int) (string, error) {
	if err := CheckPage(d, page); err != nil {
		return "", err
	}
	return d.Document.Text(page)
}
