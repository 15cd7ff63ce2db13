package checkpoint

import (
	"fmt"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
)

type ManagerErrorCause string

const (
	ErrCauseWriteFailed         ManagerErrorCause = "write_failed"
	ErrCauseReadFailed          ManagerErrorCause = "read_failed"
	ErrCauseEncodeFailed        ManagerErrorCause = "encode_failed"
	ErrCauseDecodeFailed        ManagerErrorCause = "decode_failed"
	ErrCauseNotFound            ManagerErrorCause = "not_found"
	ErrCauseFingerprintMismatch ManagerErrorCause = "fingerprint_mismatch"
	ErrCauseSchemaMismatch      ManagerErrorCause = "schema_mismatch"
)

// ManagerError is the checkpoint subsystem's classified error. Every
// cause is fatal: a corrupt or unreadable checkpoint, or a config that
// no longer matches the one a resume would reload, must stop the crawl
// rather than proceed against state it can't trust (spec.md §4.7).
type ManagerError struct {
	Message string
	Cause   ManagerErrorCause
}

func (e *ManagerError) Error() string {
	return fmt.Sprintf("checkpoint error: %s: %s", e.Cause, e.Message)
}

func (e *ManagerError) Severity() failure.Severity { return failure.SeverityFatal }
func (e *ManagerError) Kind() failure.Kind         { return failure.KindCheckpointIO }

func telemetryCause(ManagerErrorCause) telemetry.Cause { return telemetry.CauseCheckpointIO }
