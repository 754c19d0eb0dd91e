package normalize

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// importDesc puts each image centered on an 842x595pt page, scaled to the
// page. Canvas images share the page aspect ratio, so they fill it.
var importDesc = ImportDescription(PageWidth, PageHeight)

// ImportDescription is the pdfcpu import description for a w x h point page
// filled by one image.
func ImportDescription(w, h float64) string {
	return fmt.Sprintf("dim:%.0f %.0f, pos:c, sc:1.0 rel", w, h)
}

// PDFCPUBuilder imports page images with pdfcpu.
type PDFCPUBuilder struct{}

func (PDFCPUBuilder) Build(imageFiles []string, out string) error {
	imp, err := api.Import(importDesc, types.POINTS)
	if err != nil {
		return fmt.Errorf("import description: %w", err)
	}
	if err := api.ImportImagesFile(imageFiles, out, imp, nil); err != nil {
		return fmt.Errorf("pdfcpu import: %w", err)
	}
	return nil
}
