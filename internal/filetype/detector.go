// Package filetype identifies job inputs by their magic bytes and sorts a
// dropped file list into the order document, print documents and QR image.
package filetype

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the role a file can play in a job.
type Kind int

const (
	Unsupported Kind = iota
	PDF
	Image
)

func (k Kind) String() string {
	switch k {
	case PDF:
		return "pdf"
	case Image:
		return "image"
	}
	return "unsupported"
}

// imageTypes are the QR formats the pipeline can decode.
var imageTypes = []string{"image/png", "image/jpeg", "image/bmp"}

// OrderPatterns mark an order document by file name.
var OrderPatterns = []string{"의뢰서", "order", "주문서"}

// ErrNoOrder is returned when no order PDF is among the inputs.
var ErrNoOrder = errors.New("no order PDF among inputs")

// FileTypeInfo contains detected file type information.
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	Kind      Kind
}

// Detector handles file type detection using magic bytes.
type Detector struct{}

// New creates a new file type detector.
func New() *Detector {
	return &Detector{}
}

// Detect reads the file header; the file name plays no part.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	switch {
	case mtype.Is("application/pdf"):
		info.Kind = PDF
	case isImage(mtype):
		info.Kind = Image
	}
	log.Debug().Str("mime", info.MIMEType).Str("kind", info.Kind.String()).Str("file", filePath).Msg("detected file type")
	return info, nil
}

func isImage(m *mimetype.MIME) bool {
	for _, t := range imageTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

// IsPDF reports whether path holds a PDF document.
func (d *Detector) IsPDF(path string) bool {
	info, err := d.Detect(path)
	return err == nil && info.Kind == PDF
}

// IsImage reports whether path holds a PNG, JPEG or BMP image.
func (d *Detector) IsImage(path string) bool {
	info, err := d.Detect(path)
	return err == nil && info.Kind == Image
}

// Inputs is a classified file list.
type Inputs struct {
	Order   string
	Prints  []string
	QR      string
	Unknown []string
}

// IsOrderName reports whether a file name marks an order document.
func IsOrderName(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, p := range OrderPatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// Classify sorts paths into job roles. The first PDF whose name matches an
// order pattern is the order; without one, the first PDF is. The remaining
// PDFs are prints in input order. Only the first image becomes the QR; a
// second order-named PDF is a print. Unreadable and unsupported files end up
// in Unknown.
func (d *Detector) Classify(paths []string) (Inputs, error) {
	var in Inputs
	var pdfs []string

	for _, raw := range paths {
		p := strings.Trim(strings.TrimSpace(raw), `"'`)
		if p == "" {
			continue
		}
		info, err := d.Detect(p)
		if err != nil {
			log.Warn().Err(err).Str("file", p).Msg("input not readable")
			in.Unknown = append(in.Unknown, p)
			continue
		}
		switch info.Kind {
		case PDF:
			pdfs = append(pdfs, p)
		case Image:
			if in.QR != "" {
				log.Warn().Str("file", p).Msg("duplicate QR image ignored")
				in.Unknown = append(in.Unknown, p)
				continue
			}
			in.QR = p
		default:
			in.Unknown = append(in.Unknown, p)
		}
	}

	orderIdx := -1
	for i, p := range pdfs {
		if IsOrderName(p) {
			orderIdx = i
			break
		}
	}
	if orderIdx < 0 && len(pdfs) > 0 {
		orderIdx = 0
	}
	for i, p := range pdfs {
		if i == orderIdx {
			in.Order = p
		} else {
			in.Prints = append(in.Prints, p)
		}
	}

	log.Info().
		Bool("order", in.Order != "").
		Int("prints", len(in.Prints)).
		Bool("qr", in.QR != "").
		Int("unknown", len(in.Unknown)).
		Msg("inputs classified")

	if in.Order == "" {
		return in, ErrNoOrder
	}
	return in, nil
}
