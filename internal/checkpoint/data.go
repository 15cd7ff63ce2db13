// Package checkpoint implements C7: periodic, crash-safe snapshots of
// crawl state and the resume protocol that reloads them (spec.md §4.7).
package checkpoint

import (
	"time"

	"github.com/cartographer/cartographer/internal/atlas"
	"github.com/cartographer/cartographer/internal/frontier"
)

// CurrentSchemaVersion is written into every new Snapshot. A resume
// that loads a checkpoint with a different SchemaVersion has no
// migration path today and should fail the same way a fingerprint
// mismatch does, rather than risk decoding a layout this build does
// not understand.
const CurrentSchemaVersion = 1

// Snapshot is the full durable state of one crawl at the moment it was
// taken: the frontier's admission queue (including its RNG/tie-break
// state so a resumed crawl continues the same backoff-jitter stream
// rather than reseeding fresh), the Atlas Writer's per-part write
// offsets, running counters for the error budget and progress events,
// and the config fingerprint a resume must match.
type Snapshot struct {
	SchemaVersion     int                       `json:"schemaVersion"`
	TakenAt           time.Time                 `json:"takenAt"`
	ConfigFingerprint string                    `json:"configFingerprint"`
	Frontier          frontier.FrontierSnapshot `json:"frontier"`
	AtlasOffsets      atlas.Offsets             `json:"atlasOffsets"`
	PagesDone         int                       `json:"pagesDone"`
	ErrorsByKind      map[string]int            `json:"errorsByKind"`
	BytesWritten      int64                     `json:"bytesWritten"`
}

// Record is one saved checkpoint's identity plus its payload, the
// on-disk unit Save writes and Load/LoadLatest read back.
type Record struct {
	ID        string   `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Snapshot  Snapshot `json:"snapshot"`
}
