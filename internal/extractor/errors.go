package extractor

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type ExtractionErrorCause string

const (
	// ErrCauseNotHTML: the fetched body does not parse as an HTML document.
	ErrCauseNotHTML ExtractionErrorCause = "not_html"
	// ErrCauseNoContent: every heuristic layer failed to find a meaningful container.
	ErrCauseNoContent ExtractionErrorCause = "no_content"
)

type ExtractionError struct {
	Message   string
	Retryable bool
	Cause     ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s", e.Cause)
}

func (e *ExtractionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ExtractionError) Kind() failure.Kind {
	return failure.KindExtractorFailure
}

// telemetryCause maps extractor-local error causes to the shared,
// observational-only telemetry.Cause table. This mapping MUST NOT be
// used to derive control-flow decisions.
func telemetryCause(err *ExtractionError) telemetry.Cause {
	switch err.Cause {
	case ErrCauseNotHTML, ErrCauseNoContent:
		return telemetry.CauseExtractorFailure
	default:
		return telemetry.CauseUnknown
	}
}
