package manifest

import (
	"errors"
	"time"

	"github.com/blackwell-systems/snapledger/internal/hasher"
)

// ErrNotFound is returned when a source directory, target directory or
// manifest file does not exist.
var ErrNotFound = errors.New("not found")

// DefaultExcludes are the control-directory segments that never appear in
// a manifest.
var DefaultExcludes = []string{".git", ".hg", ".svn", ".bzr"}

// FileRecord is the recorded state of one file.
type FileRecord struct {
	Path   string        `json:"-"`
	Digest hasher.Digest `json:"digest"`
	Size   int64         `json:"size"`
}

// Manifest is the expected state of a directory tree at snapshot time.
// It is never modified after Build returns it.
type Manifest struct {
	Label     string           `json:"label"`
	Source    string           `json:"source"`
	CreatedAt time.Time        `json:"created_at"`
	Algorithm hasher.Algorithm `json:"algorithm"`
	Include   []string         `json:"include,omitempty"`
	Exclude   []string         `json:"exclude,omitempty"`
	Files     Files            `json:"files"`
	TotalSize int64            `json:"total_size"`
	FileCount int              `json:"file_count"`
}

// Skipped records a file left out of a bulk operation and why.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the outcome of Build: the manifest plus any files that could
// not be read.
type Result struct {
	Manifest *Manifest
	Skipped  []Skipped
}

// Excludes returns the exclusion segments in effect for m.
func (m *Manifest) Excludes() []string {
	if len(m.Exclude) == 0 {
		return DefaultExcludes
	}
	return m.Exclude
}

// Lookup returns the record for path.
func (m *Manifest) Lookup(path string) (FileRecord, bool) {
	return m.Files.Lookup(path)
}

// Paths returns every recorded path in manifest order.
func (m *Manifest) Paths() []string {
	paths := make([]string, len(m.Files))
	for i, f := range m.Files {
		paths[i] = f.Path
	}
	return paths
}

// Add appends a record and keeps the totals in step. Records must be
// added in path order.
func (m *Manifest) Add(rec FileRecord) {
	m.Files = append(m.Files, rec)
	m.TotalSize += rec.Size
	m.FileCount++
}
