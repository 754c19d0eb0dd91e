package orchestrator

import (
	"errors"

	"github.com/google/uuid"

	"github.com/local/printorder/internal/config"
	"github.com/local/printorder/internal/filetype"
)

// JobFromFiles sorts an unlabelled file list into a job. Files that are
// neither PDF nor a supported image are ignored.
func JobFromFiles(det *filetype.Detector, files []string, s config.Settings) (ProcessingJob, []string, error) {
	if det == nil {
		det = filetype.New()
	}
	in, err := det.Classify(files)
	if errors.Is(err, filetype.ErrNoOrder) {
		return ProcessingJob{}, in.Unknown, &ValidationError{Field: "order", Reason: "no PDF among the given files"}
	}
	if err != nil {
		return ProcessingJob{}, in.Unknown, err
	}
	return ProcessingJob{
		ID:         uuid.NewString(),
		OrderPath:  in.Order,
		PrintPaths: in.Prints,
		QRPath:     in.QR,
		Settings:   s,
	}, in.Unknown, nil
}
