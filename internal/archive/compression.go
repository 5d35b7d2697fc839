package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the codec wrapped around the tar stream.
type Compression uint8

const (
	// Gzip is the default and matches what most tooling expects.
	Gzip Compression = iota
	// Zstd gives better ratios on text-heavy trees.
	Zstd
	// LZ4 favours speed over ratio.
	LZ4
	// None writes a plain tar.
	None
)

// String returns the configured name of a compression.
func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case None:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name. An empty name yields Gzip.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	case "none", "tar":
		return None, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// Extension returns the file extension used for containers, including the
// leading dot.
func (c Compression) Extension() string {
	switch c {
	case Zstd:
		return ".tar.zst"
	case LZ4:
		return ".tar.lz4"
	case None:
		return ".tar"
	default:
		return ".tar.gz"
	}
}

// CompressionFromPath infers the codec from a container file name.
func CompressionFromPath(path string) (Compression, error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(path, ".tar.zst"):
		return Zstd, nil
	case strings.HasSuffix(path, ".tar.lz4"):
		return LZ4, nil
	case strings.HasSuffix(path, ".tar"):
		return None, nil
	default:
		return 0, fmt.Errorf("cannot infer compression from %s", path)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newWriter wraps w in the codec. Closing the result flushes the codec but
// does not close w.
func (c Compression) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		gw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return gw, nil
	case Zstd:
		enc, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case None:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

// newReader wraps r in the matching decoder.
func (c Compression) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case None:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}
