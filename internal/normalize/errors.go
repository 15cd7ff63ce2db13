package normalize

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type NormalizationErrorCause string

const (
	ErrCauseEmptyContent            NormalizationErrorCause = "empty_content"
	ErrCauseBrokenH1Invariant       NormalizationErrorCause = "broken_h1_invariant"
	ErrCauseBrokenAtomicBlock       NormalizationErrorCause = "broken_atomic_block"
	ErrCauseOrphanContent           NormalizationErrorCause = "orphan_content"
	ErrCauseSkippedHeadingLevels    NormalizationErrorCause = "skipped_heading_levels"
	ErrCauseEmptySection            NormalizationErrorCause = "empty_section"
	ErrCauseHashComputationFailed   NormalizationErrorCause = "hash_computation_failed"
	ErrCauseSectionDerivationFailed NormalizationErrorCause = "section_derivation_failed"
	ErrCauseTitleExtractionFailed   NormalizationErrorCause = "title_extraction_failed"
)

type NormalizationError struct {
	Message   string
	Retryable bool
	Cause     NormalizationErrorCause
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization error: %s", e.Cause)
}

func (e *NormalizationError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *NormalizationError) IsRetryable() bool {
	return e.Retryable
}

// Kind is purely observational: structural violations all surface as
// extractor-stage failures, since normalization is the last extractor
// stage before a page record is emitted.
func (e *NormalizationError) Kind() failure.Kind {
	return failure.KindExtractorFailure
}

// telemetryCause maps normalize-local error causes to the shared,
// observational-only telemetry.Cause table. This mapping MUST NOT be used
// to derive control-flow decisions.
func telemetryCause(cause NormalizationErrorCause) telemetry.Cause {
	switch cause {
	case ErrCauseEmptyContent, ErrCauseBrokenH1Invariant, ErrCauseBrokenAtomicBlock,
		ErrCauseOrphanContent, ErrCauseSkippedHeadingLevels, ErrCauseEmptySection,
		ErrCauseSectionDerivationFailed, ErrCauseTitleExtractionFailed:
		return telemetry.CauseExtractorFailure
	case ErrCauseHashComputationFailed:
		return telemetry.CauseInternal
	default:
		return telemetry.CauseUnknown
	}
}
