package pdftest

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// WritePDF writes a real PDF to path with one w x h point page per image,
// each image filling its page. Tests use it to drive the pdfcpu and go-fitz
// backends.
func WritePDF(path string, w, h float64, pages ...image.Image) error {
	if len(pages) == 0 {
		return fmt.Errorf("pdftest: no pages")
	}
	scratch, err := os.MkdirTemp("", "pdftest-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	files := make([]string, len(pages))
	for i, img := range pages {
		files[i] = filepath.Join(scratch, fmt.Sprintf("page_%02d.png", i+1))
		if err := imaging.Save(img, files[i]); err != nil {
			return err
		}
	}
	imp, err := api.Import(fmt.Sprintf("dim:%.0f %.0f, pos:c, sc:1.0 rel", w, h), types.POINTS)
	if err != nil {
		return err
	}
	return api.ImportImagesFile(files, path, imp, nil)
}
