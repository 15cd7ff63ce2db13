package mdconvert

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type ConversionErrorCause string

const (
	ErrCauseConversionFailure ConversionErrorCause = "conversion_failed"
)

type ConversionError struct {
	Message   string
	Retryable bool
	Cause     ConversionErrorCause
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion error: %s", e.Cause)
}

func (e *ConversionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ConversionError) Kind() failure.Kind {
	return failure.KindExtractorFailure
}

func telemetryCause(err *ConversionError) telemetry.Cause {
	switch err.Cause {
	case ErrCauseConversionFailure:
		return telemetry.CauseExtractorFailure
	default:
		return telemetry.CauseUnknown
	}
}
