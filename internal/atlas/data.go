package atlas

import "time"

// PartDescriptor is one part's manifest entry: its row count and the
// integrity hashes spec.md §3/§4.9 require for replayability.
type PartDescriptor struct {
	Name              string `json:"name"`
	RowCount          int    `json:"rowCount"`
	UncompressedBytes int64  `json:"uncompressedBytes"`
	CompressedBytes   int64  `json:"compressedBytes"`
	ContentHash       string `json:"contentHash"`
}

// Manifest is the archive's self-description, written once on a
// successful Close. Readers MUST reject archives whose AtlasVersion
// they do not understand (spec.md §6).
type Manifest struct {
	AtlasVersion      int              `json:"atlasVersion"`
	StartedAt         time.Time        `json:"startedAt"`
	FinishedAt        time.Time        `json:"finishedAt"`
	ConfigFingerprint string           `json:"configFingerprint"`
	Parts             []PartDescriptor `json:"parts"`
	AuditHash         string           `json:"auditHash"`
}

// CurrentAtlasVersion is the archive format version this writer
// produces.
const CurrentAtlasVersion = 1

// Offsets is the per-part uncompressed byte count and row count at the
// moment it was captured, exposed to the checkpoint manager (C7) so a
// resumed writer can reopen each part file and truncate anything past
// the last durable flush point.
type Offsets struct {
	Parts map[string]PartOffset `json:"parts"`
}

// PartOffset is one part's resumable position.
type PartOffset struct {
	CompressedBytes   int64 `json:"compressedBytes"`
	UncompressedBytes int64 `json:"uncompressedBytes"`
	RowCount          int   `json:"rowCount"`
}
