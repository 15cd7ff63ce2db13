package assets

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type AssetsErrorCause string

const (
	// ErrCauseNetworkFailure: transport-level failure reaching the asset host.
	ErrCauseNetworkFailure AssetsErrorCause = "network_failure"
	// ErrCauseAssetTooLarge: asset exceeds the configured size ceiling.
	ErrCauseAssetTooLarge AssetsErrorCause = "asset_too_large"
	// ErrCauseRequest5xx: asset host returned a server error.
	ErrCauseRequest5xx AssetsErrorCause = "request_5xx"
	// ErrCauseRequestTooMany: asset host rate-limited the request (429).
	ErrCauseRequestTooMany AssetsErrorCause = "request_too_many"
	// ErrCauseRequestPageForbidden: asset host returned a 4xx the crawler cannot retry around.
	ErrCauseRequestPageForbidden AssetsErrorCause = "request_forbidden"
	// ErrCauseRedirectLimitExceeded: asset host redirected outside the crawler's follow policy.
	ErrCauseRedirectLimitExceeded AssetsErrorCause = "redirect_limit_exceeded"
	// ErrCauseReadResponseBodyError: the response body could not be fully read.
	ErrCauseReadResponseBodyError AssetsErrorCause = "read_response_body_error"
	// ErrCauseHashError: the downloaded content could not be hashed.
	ErrCauseHashError AssetsErrorCause = "hash_error"
	// ErrCausePathError: the local asset directory could not be created.
	ErrCausePathError AssetsErrorCause = "path_error"
	// ErrCauseWriteFailure: the asset could not be written to local storage.
	ErrCauseWriteFailure AssetsErrorCause = "write_failure"
	// ErrCauseDiskFull: the asset could not be written because the disk is full.
	ErrCauseDiskFull AssetsErrorCause = "disk_full"
)

type AssetsError struct {
	Message   string
	Retryable bool
	Cause     AssetsErrorCause
}

func (e *AssetsError) Error() string {
	return fmt.Sprintf("assets error: %s", e.Cause)
}

func (e *AssetsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *AssetsError) IsRetryable() bool {
	return e.Retryable
}

// Kind is purely observational: every asset-resolution failure is reported
// as a writer-stage failure, since assets are persisted alongside the page
// they were discovered on.
func (e *AssetsError) Kind() failure.Kind {
	return failure.KindWriterIO
}

// telemetryCause maps assets-local error causes to the shared,
// observational-only telemetry.Cause table. This mapping MUST NOT be
// used to derive control-flow decisions.
func telemetryCause(cause AssetsErrorCause) telemetry.Cause {
	switch cause {
	case ErrCauseNetworkFailure, ErrCauseRequest5xx, ErrCauseRequestTooMany,
		ErrCauseRequestPageForbidden, ErrCauseRedirectLimitExceeded, ErrCauseReadResponseBodyError:
		return telemetry.CauseConnectFailure
	case ErrCauseAssetTooLarge:
		return telemetry.CauseBodyTooLarge
	case ErrCauseHashError, ErrCausePathError, ErrCauseWriteFailure, ErrCauseDiskFull:
		return telemetry.CauseWriterIO
	default:
		return telemetry.CauseUnknown
	}
}
