package scheduler

import (
	"fmt"

	"github.com/cartographer/cartographer/pkg/failure"
)

// InvariantError marks a condition spec.md §7 calls out as an internal
// invariant violation rather than an ordinary per-URL failure: one the
// scheduler's own bookkeeping should never produce. Kept distinct from
// the per-stage ClassifiedErrors every other component returns, since
// nothing here is retryable or expected.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("scheduler invariant violated: %s", e.Message)
}

func (e *InvariantError) Severity() failure.Severity { return failure.SeverityFatal }
func (e *InvariantError) Kind() failure.Kind         { return failure.KindInternal }
