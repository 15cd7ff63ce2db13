package fetcher

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseTimeout               FetchErrorCause = "timeout"
	ErrCauseNetworkFailure        FetchErrorCause = "network issues"
	ErrCauseReadResponseBodyError FetchErrorCause = "failed to read response body"
	ErrCauseContentTypeInvalid    FetchErrorCause = "non-HTML content"
	ErrCauseRedirectLimitExceeded FetchErrorCause = "reached redirect limit"
	ErrCauseRequestPageForbidden  FetchErrorCause = "forbidden"
	ErrCauseRequestTooMany        FetchErrorCause = "too many requests"
	ErrCauseRequest5xx            FetchErrorCause = "5xx"
	ErrCauseBodyTooLarge          FetchErrorCause = "response body exceeds limit"
	ErrCauseRenderFailure         FetchErrorCause = "render failure"
	ErrCauseInvalidURL            FetchErrorCause = "invalid url"
)

// FetchError is the fetcher's classified error: Severity drives
// scheduler retry behavior, Kind is purely a reporting label.
type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s", e.Cause)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

func (e *FetchError) Kind() failure.Kind {
	switch e.Cause {
	case ErrCauseTimeout:
		return failure.KindTimeout
	case ErrCauseNetworkFailure:
		return failure.KindConnectFailure
	case ErrCauseBodyTooLarge:
		return failure.KindBodyTooLarge
	case ErrCauseRenderFailure:
		return failure.KindRenderFailure
	case ErrCauseInvalidURL:
		return failure.KindConfig
	case ErrCauseRequestPageForbidden, ErrCauseRequestTooMany, ErrCauseRequest5xx,
		ErrCauseRedirectLimitExceeded, ErrCauseContentTypeInvalid:
		return failure.KindHTTPStatus
	default:
		return failure.KindInternal
	}
}

// telemetryCause maps the fetcher's local cause vocabulary onto the
// shared, observational-only telemetry.Cause table. This mapping MUST
// NOT be used to derive control-flow decisions.
func telemetryCause(err *FetchError) telemetry.Cause {
	switch err.Cause {
	case ErrCauseTimeout:
		return telemetry.CauseTimeout
	case ErrCauseNetworkFailure:
		return telemetry.CauseConnectFailure
	case ErrCauseRequestTooMany, ErrCauseRequestPageForbidden:
		return telemetry.CauseHTTPStatus
	case ErrCauseBodyTooLarge:
		return telemetry.CauseBodyTooLarge
	case ErrCauseRenderFailure:
		return telemetry.CauseRenderFailure
	default:
		return telemetry.CauseUnknown
	}
}
