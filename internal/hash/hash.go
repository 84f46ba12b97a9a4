// Package hash computes content digests used as path-independent identity
// keys for catalog records.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnavailable indicates the file could not be read (permissions,
// transient I/O). It means "hash unknown", never "file absent"; callers
// that need to distinguish absence must stat the path themselves.
var ErrUnavailable = errors.New("content hash unavailable")

const chunkSize = 1 << 20 // 1 MiB read buffer

// File computes the SHA-256 digest of the file at path by streaming it in
// fixed-size chunks.
// Parameters:
//   - path: absolute path of the file to hash.
//
// Returns:
//   - string: hex-encoded digest.
//   - error: ErrUnavailable (wrapped) if the file cannot be read.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes computes the SHA-256 digest of an in-memory buffer.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
