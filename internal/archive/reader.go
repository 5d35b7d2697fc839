package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Reader iterates the entries of a container.
type Reader struct {
	*tar.Reader
	file   *os.File
	decomp io.ReadCloser

	// Identity holds the records of the container's global header once
	// Next has passed it.
	Identity Identity
}

// Identity is what a container was packaged from.
type Identity struct {
	Label   string
	Source  string
	Include []string
	Exclude []string
}

// Next advances to the next file entry. Global headers are consumed and
// recorded in r.Identity.
func (r *Reader) Next() (*tar.Header, error) {
	for {
		hdr, err := r.Reader.Next()
		if err != nil || hdr.Typeflag != tar.TypeXGlobalHeader {
			return hdr, err
		}
		r.Identity = Identity{
			Label:   hdr.PAXRecords[paxLabel],
			Source:  hdr.PAXRecords[paxSource],
			Include: splitPatterns(hdr.PAXRecords[paxInclude]),
			Exclude: splitPatterns(hdr.PAXRecords[paxExclude]),
		}
	}
}

func splitPatterns(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, patternSep)
}

// Open opens a container, inferring the codec from its extension.
func Open(path string) (*Reader, error) {
	c, err := CompressionFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	decomp, err := c.newReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}

	return &Reader{Reader: tar.NewReader(decomp), file: f, decomp: decomp}, nil
}

// Close releases the decoder and the underlying file.
func (r *Reader) Close() error {
	derr := r.decomp.Close()
	ferr := r.file.Close()
	if derr != nil {
		return derr
	}
	return ferr
}

// Entry describes one stored file.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ListEntries returns the entries of a container in stored order.
func ListEntries(path string) ([]Entry, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []Entry
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %s: %w", path, err)
		}
		entries = append(entries, Entry{Path: hdr.Name, Size: hdr.Size, ModTime: hdr.ModTime})
	}
	return entries, nil
}
