package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceUnavailable        = errors.New("source unavailable")
	ErrArchiveCorrupt           = errors.New("archive corrupt")
	ErrExtraction               = errors.New("audio extraction error")
	ErrModel                    = errors.New("separation model error")
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")
	ErrMux                      = errors.New("mux error")
	ErrSinkTransient            = errors.New("sink transient failure")
	ErrSinkPermanent            = errors.New("sink permanent failure")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// markers lists every classification marker in lookup order. Stage markers
// come first so a mux error that wraps an external tool failure reports as a
// mux error.
var markers = []error{
	ErrSourceUnavailable,
	ErrArchiveCorrupt,
	ErrExtraction,
	ErrModel,
	ErrTranscriptionUnavailable,
	ErrMux,
	ErrSinkPermanent,
	ErrSinkTransient,
	ErrConfiguration,
	ErrValidation,
	ErrExternalTool,
}

// ErrorKind names the classification marker carried by an error.
type ErrorKind string

const (
	KindUnknown                  ErrorKind = "unknown"
	KindCanceled                 ErrorKind = "canceled"
	KindSourceUnavailable        ErrorKind = "source_unavailable"
	KindArchiveCorrupt           ErrorKind = "archive_corrupt"
	KindExtraction               ErrorKind = "extraction"
	KindModel                    ErrorKind = "model"
	KindTranscriptionUnavailable ErrorKind = "transcription_unavailable"
	KindMux                      ErrorKind = "mux"
	KindSinkTransient            ErrorKind = "sink_transient"
	KindSinkPermanent            ErrorKind = "sink_permanent"
	KindExternalTool             ErrorKind = "external_tool"
	KindValidation               ErrorKind = "validation"
	KindConfiguration            ErrorKind = "configuration"
)

var markerKinds = map[error]ErrorKind{
	ErrSourceUnavailable:        KindSourceUnavailable,
	ErrArchiveCorrupt:           KindArchiveCorrupt,
	ErrExtraction:               KindExtraction,
	ErrModel:                    KindModel,
	ErrTranscriptionUnavailable: KindTranscriptionUnavailable,
	ErrMux:                      KindMux,
	ErrSinkTransient:            KindSinkTransient,
	ErrSinkPermanent:            KindSinkPermanent,
	ErrExternalTool:             KindExternalTool,
	ErrValidation:               KindValidation,
	ErrConfiguration:            KindConfiguration,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the flattened view of a classified error used for logging
// and batch reports.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Details classifies err against the known markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{
		Kind:    KindOf(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   cause(err),
	}
	return details
}

// cause returns the underlying error of a Wrap result, skipping the marker.
func cause(err error) error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := multi.Unwrap(); len(errs) > 1 {
			return errs[len(errs)-1]
		}
		return nil
	}
	return errors.Unwrap(err)
}

// KindOf returns the kind of the first marker err matches.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if isCanceled(err) {
		return KindCanceled
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return markerKinds[marker]
		}
	}
	return KindUnknown
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
