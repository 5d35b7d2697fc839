package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/snapledger/internal/hasher"
	"github.com/blackwell-systems/snapledger/internal/manifest"
)

// IntegrityError lists every way an archive disagrees with its manifest.
// It matches ErrIntegrityMismatch under errors.Is.
type IntegrityError struct {
	Problems []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIntegrityMismatch, strings.Join(e.Problems, "; "))
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrityMismatch
}

// RestoreOptions configures Restore.
type RestoreOptions struct {
	// Overwrite replaces files that already exist under the destination.
	// Without it those files are left alone and reported as skipped.
	Overwrite bool
}

// ReasonExists is the skip reason for files Restore leaves in place.
const ReasonExists = "already exists"

// RestoreResult lists what Restore wrote and what it left alone.
type RestoreResult struct {
	Restored []string
	Skipped  []manifest.Skipped
	Bytes    int64
}

// Check streams every entry of the archive and compares it with m. It
// returns an *IntegrityError describing all mismatches, or nil.
func Check(archivePath string, m *manifest.Manifest) error {
	r, err := Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	alg := m.Algorithm
	if alg == "" {
		alg = hasher.Default
	}

	var problems []string
	seen := make(map[string]bool, len(m.Files))
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			problems = append(problems, fmt.Sprintf("%s: unsafe path", hdr.Name))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}

		if hdr.Typeflag != tar.TypeReg {
			problems = append(problems, fmt.Sprintf("%s: unexpected entry type", hdr.Name))
			continue
		}
		if !safeName(hdr.Name) {
			problems = append(problems, fmt.Sprintf("%s: unsafe path", hdr.Name))
			continue
		}
		if seen[hdr.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate entry", hdr.Name))
			continue
		}
		seen[hdr.Name] = true

		rec, ok := m.Lookup(hdr.Name)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: not in manifest", hdr.Name))
			continue
		}

		digest, n, err := hasher.Sum(alg, r)
		if err != nil {
			return fmt.Errorf("failed to read %s from archive: %w", hdr.Name, err)
		}
		if n != rec.Size || digest != rec.Digest {
			problems = append(problems, fmt.Sprintf("%s: content does not match manifest", hdr.Name))
		}
	}

	for _, rec := range m.Files {
		if !seen[rec.Path] {
			problems = append(problems, fmt.Sprintf("%s: missing from archive", rec.Path))
		}
	}

	if len(problems) > 0 {
		return &IntegrityError{Problems: problems}
	}
	return nil
}

// Restore extracts the archive under dest. Every entry is checked against m
// before anything is written; on mismatch nothing is written and an
// *IntegrityError is returned.
func Restore(archivePath string, m *manifest.Manifest, dest string, opts RestoreOptions) (*RestoreResult, error) {
	if err := Check(archivePath, m); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	r, err := Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	alg := m.Algorithm
	if alg == "" {
		alg = hasher.Default
	}

	result := &RestoreResult{}
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}

		if reason := unsafeParent(dest, hdr.Name); reason != "" {
			result.Skipped = append(result.Skipped, manifest.Skipped{Path: hdr.Name, Reason: reason})
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if _, err := os.Lstat(target); err == nil && !opts.Overwrite {
			result.Skipped = append(result.Skipped, manifest.Skipped{Path: hdr.Name, Reason: ReasonExists})
			continue
		}

		rec, _ := m.Lookup(hdr.Name)
		if err := writeEntry(target, hdr, r, alg, rec.Digest); err != nil {
			return result, err
		}
		result.Restored = append(result.Restored, hdr.Name)
		result.Bytes += hdr.Size
	}
	return result, nil
}

// writeEntry copies one entry to a temp file next to target and renames it
// into place once its digest has been confirmed again.
func writeEntry(target string, hdr *tar.Header, r io.Reader, alg hasher.Algorithm, want hasher.Digest) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
	}

	tmp, err := os.CreateTemp(dir, ".restore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", hdr.Name, err)
	}
	tmpPath := tmp.Name()

	fh := hasher.NewWriter(alg)
	if _, err := io.Copy(io.MultiWriter(tmp, fh), r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to restore %s: %w", hdr.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", hdr.Name, err)
	}
	if fh.Digest() != want {
		os.Remove(tmpPath)
		return &IntegrityError{Problems: []string{fmt.Sprintf("%s: archive changed during restore", hdr.Name)}}
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions on %s: %w", hdr.Name, err)
	}
	if err := os.Chtimes(tmpPath, hdr.ModTime, hdr.ModTime); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set times on %s: %w", hdr.Name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", hdr.Name, err)
	}
	return nil
}

// unsafeParent walks the directories between dest and the entry and
// returns why the entry cannot be written there, or "" when it can. Writes
// never pass through a symlink inside dest.
func unsafeParent(dest, name string) string {
	parts := strings.Split(name, "/")
	for i := 1; i < len(parts); i++ {
		rel := path.Join(parts[:i]...)
		info, err := os.Lstat(filepath.Join(dest, filepath.FromSlash(rel)))
		if os.IsNotExist(err) {
			return ""
		}
		if err != nil {
			return err.Error()
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			return fmt.Sprintf("%s is a symlink", rel)
		case !info.IsDir():
			return fmt.Sprintf("%s is not a directory", rel)
		}
	}
	return ""
}

// safeName reports whether an entry name is a clean relative path that
// stays inside the destination.
func safeName(name string) bool {
	if name == "" || path.IsAbs(name) || strings.Contains(name, `\`) {
		return false
	}
	if path.Clean(name) != name {
		return false
	}
	return name != ".." && !strings.HasPrefix(name, "../")
}
