// Package atlas implements C9: the streaming JSONL archive writer.
// Each named part (pages, edges, assets, errors, and per-extractor aux
// parts) is appended to independently and compressed with Zstandard;
// Close flushes every part and writes the integrity manifest (spec.md
// §4.9).
package atlas

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/fileutil"
	"github.com/cartographer/cartographer/pkg/hashutil"
)

const (
	PartPages    = "pages"
	PartEdges    = "edges"
	PartAssets   = "assets"
	PartErrors   = "errors"
	PartMarkdown = "markdown"
)

// part is one open JSONL.zst file plus the running counters needed for
// its manifest descriptor and its resumable offset.
type part struct {
	mu sync.Mutex

	name string
	file *os.File
	enc  *zstd.Encoder
	hash interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}

	rows              int
	uncompressedBytes int64
}

// Writer is the sole disk writer for a crawl's archive, per spec.md
// §5: "the Atlas Writer is the only disk writer and serializes its own
// appends per part."
type Writer struct {
	mu                sync.Mutex
	dir               string
	hashAlgo          hashutil.HashAlgo
	configFingerprint string
	startedAt         time.Time
	recorder          *telemetry.Recorder
	parts             map[string]*part
}

// NewWriter opens (or creates) an archive directory at dir. configFingerprint
// is stamped into the manifest so a resumed crawl can detect a config
// change between runs (spec.md §4.7).
func NewWriter(dir string, hashAlgo hashutil.HashAlgo, configFingerprint string, recorder *telemetry.Recorder) (*Writer, *WriterError) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, &WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: ""}
	}
	return &Writer{
		dir:               dir,
		hashAlgo:          hashAlgo,
		configFingerprint: configFingerprint,
		startedAt:         time.Now(),
		recorder:          recorder,
		parts:             make(map[string]*part),
	}, nil
}

// fail records a writer error and returns it unchanged, so call sites
// can stay a one-line `return w.fail(&WriterError{...})`.
func (w *Writer) fail(err *WriterError) *WriterError {
	if w.recorder != nil {
		w.recorder.RecordError("atlas", err.Part, telemetryCause(err.Cause),
			telemetry.Attribute{Key: telemetry.AttrMessage, Value: err.Message},
		)
	}
	return err
}

func (w *Writer) partPath(name string) string {
	return filepath.Join(w.dir, name+".jsonl.zst")
}

// ReadManifest loads and validates a previously written archive's
// manifest.json, rejecting any AtlasVersion this writer does not
// understand (spec.md §6). Used by the checkpoint manager to confirm a
// resumed archive is one it can safely reopen.
func ReadManifest(dir string) (Manifest, *WriterError) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return Manifest{}, &WriterError{Message: err.Error(), Cause: ErrCauseManifestFailed, Part: ""}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &WriterError{Message: err.Error(), Cause: ErrCauseManifestFailed, Part: ""}
	}
	if m.AtlasVersion > CurrentAtlasVersion {
		return Manifest{}, &WriterError{
			Message: "archive was written by a newer atlas version than this binary understands",
			Cause:   ErrCauseUnsupportedVersion,
			Part:    "",
		}
	}
	return m, nil
}

// OpenForResume reopens an archive directory whose parts were truncated
// to the byte offsets recorded in a checkpoint, continuing each part as
// a fresh Zstandard frame appended after the salvaged data (concatenated
// Zstandard frames decode as one logical stream, so readers are unaffected).
// Each part's content hash is rebuilt by decompressing its salvaged bytes,
// since the in-memory hash state from the crashed process is gone.
func OpenForResume(dir string, hashAlgo hashutil.HashAlgo, configFingerprint string, recorder *telemetry.Recorder, offsets Offsets) (*Writer, *WriterError) {
	w := &Writer{
		dir:               dir,
		hashAlgo:          hashAlgo,
		configFingerprint: configFingerprint,
		startedAt:         time.Now(),
		recorder:          recorder,
		parts:             make(map[string]*part, len(offsets.Parts)),
	}

	for name, off := range offsets.Parts {
		path := w.partPath(name)
		if err := os.Truncate(path, off.CompressedBytes); err != nil {
			return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: name})
		}

		hasher, herr := hashutil.NewHasher(hashAlgo)
		if herr != nil {
			return nil, w.fail(&WriterError{Message: herr.Error(), Cause: ErrCauseHashComputeFailed, Part: name})
		}
		rf, err := os.Open(path)
		if err != nil {
			return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: name})
		}
		dec, err := zstd.NewReader(rf)
		if err != nil {
			rf.Close()
			return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseHashComputeFailed, Part: name})
		}
		if _, err := io.Copy(hasher, dec); err != nil {
			dec.Close()
			rf.Close()
			return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseHashComputeFailed, Part: name})
		}
		dec.Close()
		rf.Close()

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: name})
		}
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: name})
		}

		w.parts[name] = &part{
			name:              name,
			file:              f,
			enc:               enc,
			hash:              hasher,
			rows:              off.RowCount,
			uncompressedBytes: off.UncompressedBytes,
		}
	}

	return w, nil
}

// openPart lazily opens a part file. Parts are created on first Append
// so a crawl that never touches an optional extractor part (e.g. the
// markdown aux stream) never creates an empty file for it.
func (w *Writer) openPart(name string) (*part, *WriterError) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.parts[name]; ok {
		return p, nil
	}

	f, err := os.OpenFile(w.partPath(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: name})
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseOpenFailed, Part: name})
	}
	hasher, herr := hashutil.NewHasher(w.hashAlgo)
	if herr != nil {
		enc.Close()
		f.Close()
		return nil, w.fail(&WriterError{Message: herr.Error(), Cause: ErrCauseHashComputeFailed, Part: name})
	}

	p := &part{name: name, file: f, enc: enc, hash: hasher}
	w.parts[name] = p
	return p, nil
}

// Append serializes record as one JSON line and writes it to part,
// preserving emission order within that part (spec.md §4.9/§5).
func (w *Writer) Append(partName string, record any) *WriterError {
	p, werr := w.openPart(partName)
	if werr != nil {
		return werr
	}

	line, err := json.Marshal(record)
	if err != nil {
		return w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseAppendFailed, Part: partName})
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.enc.Write(line); err != nil {
		return w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseAppendFailed, Part: partName})
	}
	if _, err := p.hash.Write(line); err != nil {
		return w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseHashComputeFailed, Part: partName})
	}
	// Flush after every record so the compressed file on disk always
	// ends on a record boundary: a crash mid-crawl leaves a truncatable,
	// not corrupt, tail for C7 to resume from.
	if err := p.enc.Flush(); err != nil {
		return w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseFlushFailed, Part: partName})
	}
	p.rows++
	p.uncompressedBytes += int64(len(line))
	return nil
}

// Offsets reports each open part's current row count and byte
// positions, for the checkpoint manager to persist (spec.md §4.7/§4.9).
func (w *Writer) Offsets() Offsets {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := Offsets{Parts: make(map[string]PartOffset, len(w.parts))}
	for name, p := range w.parts {
		p.mu.Lock()
		compressed := int64(0)
		if info, err := p.file.Stat(); err == nil {
			compressed = info.Size()
		}
		out.Parts[name] = PartOffset{
			CompressedBytes:   compressed,
			UncompressedBytes: p.uncompressedBytes,
			RowCount:          p.rows,
		}
		p.mu.Unlock()
	}
	return out
}

// Close flushes and finalizes every open part, then writes manifest.json
// containing each part's descriptor and the aggregate audit hash
// (spec.md §4.9: "hash of the concatenation of per-part hashes in
// declared order", i.e. lexicographic by part name).
func (w *Writer) Close() (Manifest, *WriterError) {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.parts))
	for name := range w.parts {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]PartDescriptor, 0, len(names))
	hexHashes := make([]string, 0, len(names))
	for _, name := range names {
		p := w.parts[name]
		p.mu.Lock()
		if err := p.enc.Close(); err != nil {
			p.mu.Unlock()
			return Manifest{}, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseCloseFailed, Part: name})
		}
		info, statErr := p.file.Stat()
		compressedBytes := int64(0)
		if statErr == nil {
			compressedBytes = info.Size()
		}
		if err := p.file.Close(); err != nil {
			p.mu.Unlock()
			return Manifest{}, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseCloseFailed, Part: name})
		}
		contentHash := hex.EncodeToString(p.hash.Sum(nil))
		descriptors = append(descriptors, PartDescriptor{
			Name:              name,
			RowCount:          p.rows,
			UncompressedBytes: p.uncompressedBytes,
			CompressedBytes:   compressedBytes,
			ContentHash:       contentHash,
		})
		hexHashes = append(hexHashes, contentHash)
		p.mu.Unlock()
	}

	auditHash, err := hashutil.HashConcat(hexHashes, w.hashAlgo)
	if err != nil {
		return Manifest{}, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseHashComputeFailed, Part: ""})
	}

	manifest := Manifest{
		AtlasVersion:      CurrentAtlasVersion,
		StartedAt:         w.startedAt,
		FinishedAt:        time.Now(),
		ConfigFingerprint: w.configFingerprint,
		Parts:             descriptors,
		AuditHash:         auditHash,
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseManifestFailed, Part: ""})
	}
	if err := os.WriteFile(filepath.Join(w.dir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return Manifest{}, w.fail(&WriterError{Message: err.Error(), Cause: ErrCauseManifestFailed, Part: ""})
	}

	if w.recorder != nil {
		for _, d := range descriptors {
			w.recorder.RecordArtifact(d.Name, d.RowCount)
		}
	}

	return manifest, nil
}
