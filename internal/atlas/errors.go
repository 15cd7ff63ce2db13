package atlas

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type WriterErrorCause string

const (
	ErrCauseOpenFailed         WriterErrorCause = "open_failed"
	ErrCauseAppendFailed       WriterErrorCause = "append_failed"
	ErrCauseFlushFailed        WriterErrorCause = "flush_failed"
	ErrCauseCloseFailed        WriterErrorCause = "close_failed"
	ErrCauseManifestFailed     WriterErrorCause = "manifest_failed"
	ErrCauseHashComputeFailed  WriterErrorCause = "hash_compute_failed"
	ErrCauseUnsupportedVersion WriterErrorCause = "unsupported_version"
)

// WriterError is the Atlas writer's classified error. Per spec.md
// §4.10's failure semantics, writer I/O failures are always fatal: the
// crawl transitions to draining rather than retrying a broken archive.
type WriterError struct {
	Message string
	Cause   WriterErrorCause
	Part    string
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("atlas writer error [%s]: %s", e.Part, e.Cause)
}

func (e *WriterError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *WriterError) Kind() failure.Kind {
	return failure.KindWriterIO
}

func telemetryCause(WriterErrorCause) telemetry.Cause {
	return telemetry.CauseWriterIO
}
