package orchestrator

import (
	"errors"
	"fmt"

	"github.com/local/printorder/internal/compose"
)

// DiagnosticKind classifies a failed job.
type DiagnosticKind string

const (
	KindValidation DiagnosticKind = "validation"
	KindWrite      DiagnosticKind = "write"
	KindInternal   DiagnosticKind = "internal"
	KindSkipped    DiagnosticKind = "skipped"
)

// Diagnostic is the structured failure payload of a ProcessingResult.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (d *Diagnostic) Error() string { return fmt.Sprintf("%s: %s", d.Kind, d.Message) }

// ValidationError reports a job input that is missing or of the wrong type.
type ValidationError struct {
	Field  string
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Path, e.Reason)
}

// SkipError is returned when a processing rule excludes the job.
type SkipError struct {
	Rules []string
}

func (e *SkipError) Error() string { return fmt.Sprintf("skipped by rules %v", e.Rules) }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsWrite reports whether err is an output write failure.
func IsWrite(err error) bool { return compose.IsWriteError(err) }

// diagnose maps an error to its diagnostic payload.
func diagnose(err error) *Diagnostic {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		we *compose.WriteError
		se *SkipError
	)
	switch {
	case errors.As(err, &ve):
		return &Diagnostic{Kind: KindValidation, Message: ve.Error(),
			Details: map[string]any{"field": ve.Field, "path": ve.Path, "reason": ve.Reason}}
	case errors.As(err, &we):
		return &Diagnostic{Kind: KindWrite, Message: err.Error(),
			Details: map[string]any{"path": we.Path}}
	case errors.As(err, &se):
		return &Diagnostic{Kind: KindSkipped, Message: err.Error(),
			Details: map[string]any{"rules": se.Rules}}
	}
	return &Diagnostic{Kind: KindInternal, Message: err.Error()}
}
