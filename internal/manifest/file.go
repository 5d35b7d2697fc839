package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blackwell-systems/snapledger/internal/hasher"
)

// Suffix is appended to a snapshot id to name its manifest sidecar.
const Suffix = ".manifest.json"

// Encode serializes m as indented JSON.
func Encode(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a serialized manifest.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes m to path atomically (temp file in the same directory, then
// rename).
func Save(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest into place: %w", err)
	}
	return nil
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Validate checks the manifest invariants: totals agree with the records,
// paths are relative, clean, unique and sorted, and no path contains an
// excluded segment.
func (m *Manifest) Validate() error {
	if m.Algorithm != "" {
		if _, err := hasher.ParseAlgorithm(string(m.Algorithm)); err != nil {
			return fmt.Errorf("invalid manifest: %w", err)
		}
	}
	if m.FileCount != len(m.Files) {
		return fmt.Errorf("invalid manifest: file_count %d does not match %d records", m.FileCount, len(m.Files))
	}

	var total int64
	excludes := m.Excludes()
	for i, f := range m.Files {
		if f.Size < 0 {
			return fmt.Errorf("invalid manifest: negative size for %s", f.Path)
		}
		if f.Path == "" || path.IsAbs(f.Path) || path.Clean(f.Path) != f.Path ||
			f.Path == ".." || strings.HasPrefix(f.Path, "../") {
			return fmt.Errorf("invalid manifest: path %q is not a clean relative path", f.Path)
		}
		if i > 0 && m.Files[i-1].Path >= f.Path {
			return fmt.Errorf("invalid manifest: path %q out of order", f.Path)
		}
		if IsExcluded(f.Path, excludes) {
			return fmt.Errorf("invalid manifest: path %q is inside an excluded directory", f.Path)
		}
		if m.Algorithm != "" && !f.Digest.Valid(m.Algorithm) {
			return fmt.Errorf("invalid manifest: malformed digest for %s", f.Path)
		}
		total += f.Size
	}

	if total != m.TotalSize {
		return fmt.Errorf("invalid manifest: total_size %d does not match sum %d", m.TotalSize, total)
	}
	return nil
}
