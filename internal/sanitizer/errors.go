package sanitizer

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type SanitizationErrorCause string

const (
	// ErrCauseUnparseableHTML: input node is nil or has no traversable structure.
	ErrCauseUnparseableHTML SanitizationErrorCause = "unparseable_html"
	// ErrCauseCompetingRoots: S3 invariant violation, multiple article/main at the same level.
	ErrCauseCompetingRoots SanitizationErrorCause = "competing_roots"
	// ErrCauseNoStructuralAnchor: H3 invariant violation, no headings and no semantic container.
	ErrCauseNoStructuralAnchor SanitizationErrorCause = "no_structural_anchor"
	// ErrCauseMultipleH1NoRoot: H2 invariant violation, multiple h1 without a provable primary root.
	ErrCauseMultipleH1NoRoot SanitizationErrorCause = "multiple_h1_no_root"
	// ErrCauseImpliedMultipleDocs: S5 invariant violation, document implies multiple complete documents.
	ErrCauseImpliedMultipleDocs SanitizationErrorCause = "implied_multiple_docs"
	// ErrCauseAmbiguousDOM: E1 invariant violation, overlapping or orphaned heading contexts.
	ErrCauseAmbiguousDOM SanitizationErrorCause = "ambiguous_dom"
)

type SanitizationError struct {
	Message   string
	Retryable bool
	Cause     SanitizationErrorCause
}

func (e *SanitizationError) Error() string {
	return fmt.Sprintf("sanitization error: %s", e.Cause)
}

func (e *SanitizationError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// Kind is purely observational: a document that fails structural repair
// is always reported as an extractor-stage failure, regardless of which
// invariant tripped.
func (e *SanitizationError) Kind() failure.Kind {
	return failure.KindExtractorFailure
}

// telemetryCause maps sanitizer-local error causes to the shared,
// observational-only telemetry.Cause table. This mapping MUST NOT be
// used to derive control-flow decisions.
func telemetryCause(err *SanitizationError) telemetry.Cause {
	switch err.Cause {
	case ErrCauseUnparseableHTML, ErrCauseCompetingRoots, ErrCauseNoStructuralAnchor,
		ErrCauseMultipleH1NoRoot, ErrCauseImpliedMultipleDocs, ErrCauseAmbiguousDOM:
		return telemetry.CauseExtractorFailure
	default:
		return telemetry.CauseUnknown
	}
}
