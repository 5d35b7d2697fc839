// Package hasher computes streaming content digests for snapshot files and
// archive containers.
//
// Input is always consumed in fixed-size chunks so memory use does not grow
// with file size. Digests are lowercase hex strings.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ChunkSize is the read buffer size used when streaming input into a hash.
const ChunkSize = 64 * 1024

// Algorithm names a digest function.
type Algorithm string

const (
	// SHA256 is the default algorithm.
	SHA256 Algorithm = "sha256"
	// BLAKE3 is a faster alternative with the same digest length.
	BLAKE3 Algorithm = "blake3"
)

// Default is used when no algorithm is configured.
const Default = SHA256

// ParseAlgorithm converts a configured name into an Algorithm.
// An empty name yields Default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "":
		return Default, nil
	case SHA256, BLAKE3:
		return Algorithm(name), nil
	default:
		return "", fmt.Errorf("unknown digest algorithm: %q", name)
	}
}

// String returns the algorithm name.
func (a Algorithm) String() string {
	return string(a)
}

// New returns a fresh hash.Hash for the algorithm. Unknown or empty
// algorithms fall back to Default.
func (a Algorithm) New() hash.Hash {
	switch a {
	case BLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

// DigestLength is the length in hex characters of a digest produced by a.
func (a Algorithm) DigestLength() int {
	return a.New().Size() * 2
}

// Digest is a hex-encoded content digest.
type Digest string

// String returns the digest as a plain string.
func (d Digest) String() string {
	return string(d)
}

// Short returns the first n hex characters of the digest.
func (d Digest) Short(n int) string {
	if len(d) <= n {
		return string(d)
	}
	return string(d[:n])
}

// Valid reports whether d is a well-formed digest for algorithm a.
func (d Digest) Valid(a Algorithm) bool {
	if len(d) != a.DigestLength() {
		return false
	}
	_, err := hex.DecodeString(string(d))
	return err == nil
}

// Sum streams r through the algorithm and returns the digest and the
// number of bytes read.
func Sum(a Algorithm, r io.Reader) (Digest, int64, error) {
	h := a.New()
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, fmt.Errorf("failed to read input: %w", err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}

// File streams the file at path through the algorithm.
func File(a Algorithm, path string) (Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	d, n, err := Sum(a, f)
	if err != nil {
		return "", n, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return d, n, nil
}

// Bytes returns the digest of an in-memory buffer.
func Bytes(a Algorithm, data []byte) Digest {
	h := a.New()
	h.Write(data)
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// Writer hashes everything written to it. It is meant to sit behind an
// io.MultiWriter or io.TeeReader so content is hashed while it is stored.
type Writer struct {
	h    hash.Hash
	size int64
}

// NewWriter returns a Writer for algorithm a.
func NewWriter(a Algorithm) *Writer {
	return &Writer{h: a.New()}
}

// Write implements io.Writer. It never returns an error.
func (w *Writer) Write(p []byte) (int, error) {
	n, _ := w.h.Write(p)
	w.size += int64(n)
	return n, nil
}

// Digest returns the digest of everything written so far.
func (w *Writer) Digest() Digest {
	return Digest(hex.EncodeToString(w.h.Sum(nil)))
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Reset clears the writer so it can hash a new stream.
func (w *Writer) Reset() {
	w.h.Reset()
	w.size = 0
}
