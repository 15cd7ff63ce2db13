package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"lukechampine.com/blake3"
)

type HashAlgo string

const (
	HashAlgoSHA256 HashAlgo = "sha256"
	HashAlgoBLAKE3 HashAlgo = "blake3"
)

// HashBytes returns the hash of data as a hex string using the specified
// algorithm. Supported algorithms: "sha256" and "blake3".
func HashBytes(data []byte, algo HashAlgo) (string, error) {
	switch algo {
	case HashAlgoSHA256:
		return hashBytesSha256(data), nil
	case HashAlgoBLAKE3:
		return hashBytesBlake3(data), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// HashConcat hashes the concatenation of already-computed hex-encoded
// hashes in the order given. Used for the Atlas manifest audit hash,
// which binds per-part content hashes into one archive identity.
func HashConcat(hexHashes []string, algo HashAlgo) (string, error) {
	var buf []byte
	for _, h := range hexHashes {
		buf = append(buf, []byte(h)...)
	}
	return HashBytes(buf, algo)
}

// NewHasher returns a streaming hash.Hash for algo, for callers that need
// to hash data incrementally (e.g. the Atlas writer hashing a part's
// uncompressed stream as records are appended) instead of buffering the
// whole payload for HashBytes.
func NewHasher(algo HashAlgo) (hash.Hash, error) {
	switch algo {
	case HashAlgoSHA256:
		return sha256.New(), nil
	case HashAlgoBLAKE3:
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

func hashBytesSha256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func hashBytesBlake3(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}
