package robots

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCauseDisallowRoot         = "root disallowed to be crawled"
	ErrCauseInvalidRobotsUrl     = "invalid robots.txt URL"
	ErrCausePreFetchFailure      = "failed before making fetch"
	ErrCauseHttpFetchFailure     = "failed to fetch"
	ErrCauseHttpTooManyRequests  = "too many requests"
	ErrCauseHttpTooManyRedirects = "too many redirects"
	ErrCauseHttpServerError      = "http server error"
	ErrCauseHttpUnexpectedStatus = "unexpected http status"
	ErrCauseParseError           = "failed to parse robots.txt"
)

type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s", e.Cause)
}

func (e *RobotsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RobotsError) Kind() failure.Kind {
	return failure.KindRobotsDisallow
}

func (e *RobotsError) IsRetryable() bool {
	return e.Retryable
}

// mapRobotsErrorToCause maps robots-local error semantics to the
// canonical telemetry.Cause table. This mapping is observational only
// and MUST NOT be used to derive control-flow decisions.
func mapRobotsErrorToCause(err *RobotsError) telemetry.Cause {
	switch err.Cause {
	case ErrCauseDisallowRoot:
		return telemetry.CauseRobotsDisallow
	case ErrCauseInvalidRobotsUrl:
		return telemetry.CauseInternal
	case ErrCausePreFetchFailure:
		return telemetry.CauseUnknown
	case ErrCauseHttpFetchFailure, ErrCauseHttpTooManyRequests, ErrCauseHttpTooManyRedirects, ErrCauseHttpServerError, ErrCauseHttpUnexpectedStatus:
		return telemetry.CauseConnectFailure
	case ErrCauseParseError:
		return telemetry.CauseHTTPStatus
	default:
		return telemetry.CauseUnknown
	}
}
